package debutils

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// DecompressIndex opens a downloaded Packages index and returns a reader for
// the uncompressed control data. Debian mirrors publish the index as either
// Packages.gz or Packages.xz.
func DecompressIndex(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %v", err)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gzReader, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %v", err)
		}
		return &indexReader{Reader: gzReader, closers: []io.Closer{gzReader, f}}, nil
	case strings.HasSuffix(path, ".xz"):
		xzReader, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create xz reader: %v", err)
		}
		return &indexReader{Reader: xzReader, closers: []io.Closer{f}}, nil
	default:
		return &indexReader{Reader: f, closers: []io.Closer{f}}, nil
	}
}

type indexReader struct {
	io.Reader
	closers []io.Closer
}

func (r *indexReader) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PackagesIndexURL probes the repository for the package index, preferring
// the gzip variant.
func PackagesIndexURL(baseURL, codename, component, arch string) string {
	possibleFiles := []string{"Packages.gz", "Packages.xz"}
	if component == "" {
		component = "main"
	}
	for _, fname := range possibleFiles {
		indexURL := baseURL + "/dists/" + codename + "/" + component + "/binary-" + DebArch(arch) + "/" + fname
		if urlExists(indexURL) {
			return indexURL
		}
	}
	return ""
}

// DebArch maps a target architecture name to the Debian architecture label.
func DebArch(arch string) string {
	switch arch {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	}
	return arch
}

func urlExists(url string) bool {
	resp, err := http.Head(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
