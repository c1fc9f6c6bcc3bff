package rpmutils

import (
	"fmt"
	"os"

	gorpm "github.com/sassoftware/go-rpmutils"
)

// ExtractRpm unpacks the payload of an rpm package into destDir.
func ExtractRpm(rpmPath, destDir string) error {
	f, err := os.Open(rpmPath)
	if err != nil {
		return fmt.Errorf("opening package %s: %w", rpmPath, err)
	}
	defer f.Close()

	rpm, err := gorpm.ReadRpm(f)
	if err != nil {
		return fmt.Errorf("reading package %s: %w", rpmPath, err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating extraction root: %w", err)
	}
	if err := rpm.ExpandPayload(destDir); err != nil {
		return fmt.Errorf("extracting payload of %s: %w", rpmPath, err)
	}
	return nil
}
