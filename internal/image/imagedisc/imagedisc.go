package imagedisc

import (
	"fmt"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	disk "github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/partition/gpt"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// PartitionInfo describes one GPT partition. Partitions are laid out
// sequentially starting at LBA 2048 with their declared sizes.
type PartitionInfo struct {
	Name      string
	SizeBytes uint64
	TypeGUID  string
}

const firstPartitionLBA = 2048

// CreateImageDisc allocates a sparse raw disk image file of the given size,
// rounded up to whole 512-byte sectors.
func CreateImageDisc(path string, sizeBytes uint64) error {
	sectorSize := uint64(diskfs.SectorSize512)
	sizeBytes = ((sizeBytes + sectorSize - 1) / sectorSize) * sectorSize

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(sizeBytes)); err != nil {
		return fmt.Errorf("truncate image file: %w", err)
	}
	return nil
}

// PartitionImageDisc writes a GPT with a protective MBR over the image,
// containing the given partitions in order.
func PartitionImageDisc(path string, parts []PartitionInfo) error {
	for i, p := range parts {
		if p.Name == "" || p.TypeGUID == "" || p.SizeBytes == 0 {
			return fmt.Errorf("partition %d needs a name, a type GUID and a non-zero size", i+1)
		}
	}

	dsk, err := diskfs.Open(path, diskfs.WithSectorSize(diskfs.SectorSize512))
	if err != nil {
		return fmt.Errorf("open disk image: %w", err)
	}
	defer dsk.Close()

	table := &gpt.Table{
		LogicalSectorSize:  int(dsk.LogicalBlocksize),
		PhysicalSectorSize: int(dsk.PhysicalBlocksize),
		ProtectiveMBR:      true,
	}

	sectorSize := uint64(dsk.LogicalBlocksize)
	cursor := uint64(firstPartitionLBA)
	for _, p := range parts {
		sectors := p.SizeBytes / sectorSize
		table.Partitions = append(table.Partitions, &gpt.Partition{
			Start: cursor,
			Size:  sectors,
			Type:  gpt.Type(p.TypeGUID),
			Name:  p.Name,
		})
		cursor += sectors
	}

	if err := dsk.Partition(table); err != nil {
		return fmt.Errorf("write GPT table: %w", err)
	}
	logger.Logger().Infof("Wrote GPT with %d partitions to %s", len(parts), path)
	return nil
}

// FormatPartition creates a FAT32 filesystem on the given partition
// (1-based). FAT32 is the only format the raw exporter produces.
func FormatPartition(path string, partNum int, fsType string) error {
	switch fsType {
	case "fat32", "vfat":
	default:
		return fmt.Errorf("unsupported filesystem type: %s", fsType)
	}

	dsk, err := diskfs.Open(path, diskfs.WithSectorSize(diskfs.SectorSize512))
	if err != nil {
		return fmt.Errorf("open disk image: %w", err)
	}
	defer dsk.Close()

	spec := disk.FilesystemSpec{Partition: partNum, FSType: filesystem.TypeFat32}
	if _, err := dsk.CreateFilesystem(spec); err != nil {
		return fmt.Errorf("format partition: %w", err)
	}
	return nil
}

// MountImageDisc returns the filesystem of the given partition (1-based).
func MountImageDisc(path string, partNum int) (filesystem.FileSystem, error) {
	dsk, err := diskfs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open disk image: %w", err)
	}
	fs, err := dsk.GetFilesystem(partNum)
	if err != nil {
		return nil, fmt.Errorf("get filesystem: %w", err)
	}
	return fs, nil
}

// UnmountImageDisc closes the filesystem, flushing pending writes.
func UnmountImageDisc(fs filesystem.FileSystem) error {
	if err := fs.Close(); err != nil {
		return fmt.Errorf("close filesystem: %w", err)
	}
	return nil
}
