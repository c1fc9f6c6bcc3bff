package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/container-image-composer/internal/builder"
	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/config/validate"
	"github.com/open-edge-platform/container-image-composer/internal/image/imagesign"
	"github.com/open-edge-platform/container-image-composer/internal/tui"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

var (
	buildCompression string
	buildRunCmds     bool
	buildMonitor     bool
	buildSignKey     string
	buildVerbose     bool
)

func createBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build [flags] RECIPE_FILE",
		Short: "Build an image from a recipe",
		Long: `Build runs the full pipeline for one recipe: base rootfs, OS
packages, python dependencies, system files, run commands and image
packing. The output is an OCI layout (default) or a raw disk image.`,
		Args: cobra.ExactArgs(1),
		RunE: executeBuild,
	}

	buildCmd.Flags().StringVar(&buildCompression, "compression", "gzip",
		"Layer compression: gzip or zstd")
	buildCmd.Flags().BoolVar(&buildRunCmds, "run-commands", false,
		"Execute recipe runCommands in a chroot (requires root)")
	buildCmd.Flags().BoolVar(&buildMonitor, "monitor", false,
		"Show a live build progress view")
	buildCmd.Flags().StringVar(&buildSignKey, "sign-key", "",
		"PGP private key used to sign the layout index")
	buildCmd.Flags().BoolVar(&buildVerbose, "verbose", false,
		"Enable debug logging")
	return buildCmd
}

func executeBuild(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	recipe, err := config.LoadRecipe(args[0])
	if err != nil {
		return err
	}

	recipeData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading recipe %s: %w", args[0], err)
	}
	if err := validate.ValidateRecipeYAML(recipeData); err != nil {
		return fmt.Errorf("recipe %s failed schema validation: %w", args[0], err)
	}
	if err := validate.ValidateRecipe(recipe); err != nil {
		return fmt.Errorf("recipe %s failed validation: %w", args[0], err)
	}

	config.TargetOs = recipe.Target.OS
	config.TargetDist = recipe.Target.Dist
	config.TargetArch = recipe.Target.Arch
	if err := config.CreateWorkDirs(); err != nil {
		return err
	}

	opts := builder.Options{
		Compression: buildCompression,
		RunCommands: buildRunCmds,
	}

	var monitor *tui.Monitor
	if buildMonitor {
		monitor = tui.NewMonitor(builder.StepNames())
		opts.Observer = monitor.Observer()
		go func() {
			if err := monitor.Run(); err != nil {
				log.Errorf("Build monitor failed: %v", err)
			}
		}()
		defer monitor.Stop()
	}

	b, err := builder.New(recipe, opts)
	if err != nil {
		return err
	}

	result, err := b.Run()
	if err != nil {
		return err
	}

	if buildSignKey != "" && result.LayoutDir != "" {
		signer, err := imagesign.NewSigner(buildSignKey, os.Getenv("IMAGE_SIGN_PASSPHRASE"))
		if err != nil {
			return err
		}
		if err := signer.SignLayout(result.LayoutDir); err != nil {
			return err
		}
	}

	if err := logger.WriteFetchReport(); err != nil {
		log.Warnf("Failed to write fetch report: %v", err)
	}

	switch {
	case result.LayoutDir != "":
		fmt.Printf("Built %s (%s)\n  layout: %s\n", result.Ref, result.ManifestDigest, result.LayoutDir)
	case result.RawImagePath != "":
		fmt.Printf("Built %s\n  raw image: %s\n", result.Ref, result.RawImagePath)
	}
	return nil
}
