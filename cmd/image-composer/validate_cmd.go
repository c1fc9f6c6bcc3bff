package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/config/validate"
)

func createValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate RECIPE_FILE",
		Short: "Validate a build recipe without building",
		Args:  cobra.ExactArgs(1),
		RunE:  executeValidate,
	}
}

func executeValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading recipe %s: %w", args[0], err)
	}
	if err := validate.ValidateRecipeYAML(data); err != nil {
		return fmt.Errorf("recipe %s failed schema validation: %w", args[0], err)
	}

	recipe, err := config.LoadRecipe(args[0])
	if err != nil {
		return err
	}
	if err := validate.ValidateRecipe(recipe); err != nil {
		return fmt.Errorf("recipe %s failed validation: %w", args[0], err)
	}

	fmt.Printf("Recipe %s is valid\n", args[0])
	return nil
}
