package rawmaker

import (
	"fmt"
	"os"

	"github.com/diskfs/go-diskfs/partition/gpt"

	"github.com/open-edge-platform/container-image-composer/internal/image/imagedisc"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

const (
	// Raw images get headroom for filesystem metadata plus alignment slack.
	sizeHeadroomBytes = 64 << 20
	minImageBytes     = 64 << 20
	partitionOffset   = 2048 * 512
)

// ExportRaw writes the flattened rootfs at rootfsDir into a raw GPT disk
// image at destPath with a single FAT32 data partition.
func ExportRaw(rootfsDir, destPath string) error {
	log := logger.Logger()

	payload, err := imagedisc.TreeSize(rootfsDir)
	if err != nil {
		return fmt.Errorf("failed to size rootfs: %w", err)
	}

	partSize := payload + sizeHeadroomBytes
	if partSize < minImageBytes {
		partSize = minImageBytes
	}
	// Round partition size to 1 MiB
	partSize = (partSize + (1 << 20) - 1) &^ ((1 << 20) - 1)
	discSize := uint64(partitionOffset) + partSize + (1 << 20)

	log.Infof("Exporting %s to raw image %s (%d MiB)", rootfsDir, destPath, discSize>>20)

	if err := imagedisc.CreateImageDisc(destPath, discSize); err != nil {
		return fmt.Errorf("failed to create raw image: %w", err)
	}

	parts := []imagedisc.PartitionInfo{
		{
			Name:      "rootfs",
			SizeBytes: partSize,
			TypeGUID:  string(gpt.LinuxFilesystem),
		},
	}
	if err := imagedisc.PartitionImageDisc(destPath, parts); err != nil {
		cleanup(destPath)
		return fmt.Errorf("failed to partition raw image: %w", err)
	}

	if err := imagedisc.FormatPartition(destPath, 1, "fat32"); err != nil {
		cleanup(destPath)
		return fmt.Errorf("failed to format raw image: %w", err)
	}

	imgfs, err := imagedisc.MountImageDisc(destPath, 1)
	if err != nil {
		cleanup(destPath)
		return fmt.Errorf("failed to open raw image filesystem: %w", err)
	}

	if err := imagedisc.CopyTree(imgfs, rootfsDir); err != nil {
		imagedisc.UnmountImageDisc(imgfs)
		cleanup(destPath)
		return fmt.Errorf("failed to populate raw image: %w", err)
	}

	if err := imagedisc.UnmountImageDisc(imgfs); err != nil {
		cleanup(destPath)
		return fmt.Errorf("failed to flush raw image: %w", err)
	}

	log.Infof("Raw image written to %s", destPath)
	return nil
}

func cleanup(path string) {
	if err := os.Remove(path); err != nil {
		logger.Logger().Warnf("Failed to remove partial image %s: %v", path, err)
	}
}
