package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/open-edge-platform/container-image-composer/internal/image/rawmaker"
)

func createExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export ROOTFS_DIR DEST_IMAGE",
		Short: "Export a staged rootfs to a raw disk image",
		Long: `Export writes a build's staged rootfs directory into a raw GPT
disk image with a single data partition.`,
		Args: cobra.ExactArgs(2),
		RunE: executeExport,
	}
}

func executeExport(cmd *cobra.Command, args []string) error {
	if err := rawmaker.ExportRaw(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", args[0], args[1])
	return nil
}
