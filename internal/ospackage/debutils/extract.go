package debutils

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/open-edge-platform/container-image-composer/internal/utils/archive"
)

const arMagic = "!<arch>\n"

// arEntry is one member of a Unix ar archive, the outer container of a
// deb package.
type arEntry struct {
	Name string
	Size int64
}

// ExtractDeb unpacks the data payload of a deb package into destDir.
// Control archives and package metadata members are skipped.
func ExtractDeb(debPath, destDir string) error {
	f, err := os.Open(debPath)
	if err != nil {
		return fmt.Errorf("opening package %s: %w", debPath, err)
	}
	defer f.Close()

	magic := make([]byte, len(arMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return fmt.Errorf("reading archive magic of %s: %w", debPath, err)
	}
	if string(magic) != arMagic {
		return fmt.Errorf("%s is not an ar archive", debPath)
	}

	for {
		entry, err := readArHeader(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive member of %s: %w", debPath, err)
		}

		body := io.LimitReader(f, entry.Size)
		if strings.HasPrefix(entry.Name, "data.tar") {
			dec, err := archive.Decompress(body, entry.Name)
			if err != nil {
				return fmt.Errorf("decompressing payload of %s: %w", debPath, err)
			}
			payload := io.Reader(body)
			if dec != nil {
				payload = dec
			}
			if err := archive.ExtractTar(payload, destDir); err != nil {
				if dec != nil {
					dec.Close()
				}
				return fmt.Errorf("extracting payload of %s: %w", debPath, err)
			}
			if dec != nil {
				dec.Close()
			}
			return nil
		}

		// Skip member and padding
		if _, err := io.Copy(io.Discard, body); err != nil {
			return fmt.Errorf("skipping archive member %s: %w", entry.Name, err)
		}
		if entry.Size%2 == 1 {
			if _, err := io.CopyN(io.Discard, f, 1); err != nil {
				return fmt.Errorf("skipping archive padding: %w", err)
			}
		}
	}

	return fmt.Errorf("%s has no data.tar payload", debPath)
}

// readArHeader parses one fixed 60-byte ar member header.
func readArHeader(r io.Reader) (arEntry, error) {
	hdr := make([]byte, 60)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return arEntry{}, io.EOF
		}
		return arEntry{}, err
	}

	if string(hdr[58:60]) != "`\n" {
		return arEntry{}, fmt.Errorf("malformed ar member header")
	}

	name := strings.TrimRight(string(hdr[0:16]), " ")
	name = strings.TrimSuffix(name, "/")

	size, err := strconv.ParseInt(strings.TrimSpace(string(hdr[48:58])), 10, 64)
	if err != nil {
		return arEntry{}, fmt.Errorf("malformed ar member size: %w", err)
	}

	return arEntry{Name: name, Size: size}, nil
}
