package imagedisc

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/diskfs/go-diskfs/filesystem"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// CopyTree copies a host directory tree into a formatted image filesystem.
// Symlinks and special files are skipped since FAT-family filesystems
// cannot represent them.
func CopyTree(imgfs filesystem.FileSystem, hostDir string) error {
	log := logger.Logger()

	return filepath.WalkDir(hostDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(hostDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := "/" + filepath.ToSlash(rel)

		if d.IsDir() {
			if err := imgfs.Mkdir(target); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			log.Debugf("Skipping non-regular file %s", target)
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer src.Close()

		dst, err := imgfs.OpenFile(target, os.O_CREATE|os.O_RDWR)
		if err != nil {
			return fmt.Errorf("create %s in image: %w", target, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return fmt.Errorf("copy %s into image: %w", target, err)
		}
		return dst.Close()
	})
}

// TreeSize returns the total size in bytes of all regular files under dir.
func TreeSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sizing %s: %w", dir, err)
	}
	return total, nil
}
