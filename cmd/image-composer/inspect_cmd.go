package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/image/imageinspect"
	"github.com/open-edge-platform/container-image-composer/internal/image/imagesign"
)

var (
	inspectFormat    string
	verifyRecipePath string
	verifyKeyring    string
)

func createInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [flags] LAYOUT_DIR",
		Short: "Inspect a built image layout",
		Long: `Inspect reads a built OCI layout and reports the image reference,
platform, runtime contract and per-layer contents.`,
		Args: cobra.ExactArgs(1),
		RunE: executeInspect,
	}
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text",
		"Output format: text or json")
	return inspectCmd
}

func executeInspect(cmd *cobra.Command, args []string) error {
	ins, err := imageinspect.Open(args[0])
	if err != nil {
		return err
	}
	report, err := ins.Report()
	if err != nil {
		return err
	}

	switch strings.ToLower(inspectFormat) {
	case "json":
		out, err := imageinspect.RenderJSON(report)
		if err != nil {
			return err
		}
		fmt.Print(out)
	case "text":
		fmt.Print(imageinspect.RenderText(report))
	default:
		return fmt.Errorf("unsupported output format %q", inspectFormat)
	}
	return nil
}

func createVerifyCommand() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [flags] LAYOUT_DIR",
		Short: "Verify a built image against its recipe",
		Long: `Verify checks a built image layout against the runtime contract
of its recipe: exposed ports, working directory, startup command, declared
directories and placed files. With --keyring it also checks the layout
index signature.`,
		Args: cobra.ExactArgs(1),
		RunE: executeVerify,
	}
	verifyCmd.Flags().StringVar(&verifyRecipePath, "recipe", "",
		"Recipe file the image was built from")
	verifyCmd.Flags().StringVar(&verifyKeyring, "keyring", "",
		"Public keyring for layout signature verification")
	verifyCmd.MarkFlagRequired("recipe")
	return verifyCmd
}

func executeVerify(cmd *cobra.Command, args []string) error {
	recipe, err := config.LoadRecipe(verifyRecipePath)
	if err != nil {
		return err
	}

	if verifyKeyring != "" {
		if err := imagesign.VerifyLayout(args[0], verifyKeyring); err != nil {
			return err
		}
		fmt.Println("Layout signature is valid")
	}

	ins, err := imageinspect.Open(args[0])
	if err != nil {
		return err
	}
	result, err := imageinspect.Verify(ins, recipe)
	if err != nil {
		return err
	}

	fmt.Print(imageinspect.RenderVerifyText(result))
	if !result.OK() {
		return fmt.Errorf("image does not satisfy recipe %s", verifyRecipePath)
	}
	return nil
}
