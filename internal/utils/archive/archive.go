package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

// OpenCompressed opens a possibly compressed file and returns a reader for
// its decompressed content, selected by file extension.
func OpenCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	rc, err := Decompress(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	if rc == nil {
		return f, nil
	}
	return &readCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
}

// Decompress wraps r in a decompressor chosen by the extension of name.
// It returns nil for extensions that carry no compression.
func Decompress(r io.Reader, name string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".tgz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing gzip stream %s: %w", name, err)
		}
		return gz, nil
	case strings.HasSuffix(name, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing xz stream %s: %w", name, err)
		}
		return io.NopCloser(xr), nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing zstd stream %s: %w", name, err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, nil
	}
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var firstErr error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ExtractTar unpacks a tar stream into destDir. Entries escaping destDir
// are rejected; device nodes are skipped since image staging runs
// unprivileged.
func ExtractTar(r io.Reader, destDir string) error {
	log := logger.Logger()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		target, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if target == destDir {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", target, err)
			}
			if err := writeFile(target, tr, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", target, err)
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			src, err := securePath(destDir, hdr.Linkname)
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(src, target); err != nil {
				return fmt.Errorf("creating hardlink %s: %w", target, err)
			}
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			log.Debugf("Skipping special file %s", hdr.Name)
		default:
			log.Debugf("Skipping tar entry %s with type %d", hdr.Name, hdr.Typeflag)
		}
	}
}

// ExtractFile unpacks a possibly compressed tarball file into destDir.
func ExtractFile(path, destDir string) error {
	rc, err := OpenCompressed(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := ExtractTar(rc, destDir); err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing file %s: %w", target, err)
	}
	return f.Close()
}

func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target == destDir {
		return target, nil
	}
	if !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("tar entry %q escapes extraction root", name)
	}
	if err := checkParent(destDir, filepath.Dir(target)); err != nil {
		return "", fmt.Errorf("tar entry %q: %w", name, err)
	}
	return target, nil
}

// checkParent resolves the deepest existing ancestor of dir and rejects it
// when previously extracted symlinks carry it outside root. The lexical
// prefix check alone misses that case.
func checkParent(root, dir string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolving extraction root: %w", err)
	}

	for p := dir; ; p = filepath.Dir(p) {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(os.PathSeparator)) {
				return fmt.Errorf("parent directory resolves outside extraction root")
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("resolving parent %s: %w", p, err)
		}
		if p == root || filepath.Dir(p) == p {
			return nil
		}
	}
}
