package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"

	// Package providers register themselves at init time.
	_ "github.com/open-edge-platform/container-image-composer/internal/provider/azurelinux3"
	_ "github.com/open-edge-platform/container-image-composer/internal/provider/debian"
)

var (
	configFile string
	logLevel   string
	workers    int
)

func main() {
	root := createRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "image-composer",
		Short: "Compose application container images from declarative recipes",
		Long: `image-composer builds application container images from YAML build
recipes: it provisions a base rootfs, installs OS packages from configured
repositories, stages pinned python dependencies, places application files
and packs the result into an OCI image layout or a raw disk image.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Accept underscore spellings of multi-word flags.
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.PersistentFlags().StringVar(&configFile, "config", "composer.yml",
		"Tool configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	root.PersistentFlags().IntVar(&workers, "workers", 0,
		"Concurrent download workers (overrides config file)")

	root.AddCommand(createBuildCommand())
	root.AddCommand(createValidateCommand())
	root.AddCommand(createInspectCommand())
	root.AddCommand(createVerifyCommand())
	root.AddCommand(createExportCommand())

	attachLoggingHooks(root)
	return root
}

// resolveRequestedLogLevel prefers the explicit --log-level flag and falls
// back to --verbose on commands that define it.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd != nil {
		if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
			return "debug"
		}
	}
	return ""
}

// attachLoggingHooks wires configuration loading and logger setup into
// every subcommand.
func attachLoggingHooks(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
			if err := config.LoadGlobalConfig(configFile); err != nil {
				return err
			}
			if workers > 0 {
				config.GlConfig.Workers = workers
			}

			level := resolveRequestedLogLevel(cmd)
			if level == "" {
				level = config.GlConfig.Logging.Level
			}
			return logger.Init(level)
		}
	}
}
