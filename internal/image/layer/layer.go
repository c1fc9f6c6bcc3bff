package layer

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	MediaTypeTarGzip = "application/vnd.oci.image.layer.v1.tar+gzip"
	MediaTypeTarZstd = "application/vnd.oci.image.layer.v1.tar+zstd"
)

// Layer describes one packed filesystem layer blob.
type Layer struct {
	MediaType string
	Digest    string // sha256 of the compressed blob
	DiffID    string // sha256 of the uncompressed tar stream
	Size      int64  // compressed size in bytes
	Path      string // location of the blob on disk
}

// epoch is the fixed timestamp stamped on every tar entry so that packing
// the same tree twice yields the same digest.
var epoch = time.Unix(0, 0)

// Pack archives rootfsDir into a compressed layer blob under blobDir.
// compression selects "gzip" or "zstd".
func Pack(rootfsDir, blobDir, compression string) (*Layer, error) {
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(blobDir, "layer-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating layer temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	compressedHash := sha256.New()
	countingOut := &countingWriter{w: io.MultiWriter(tmp, compressedHash)}

	var compressor io.WriteCloser
	var mediaType string
	switch compression {
	case "", "gzip":
		compressor = gzip.NewWriter(countingOut)
		mediaType = MediaTypeTarGzip
	case "zstd":
		zw, err := zstd.NewWriter(countingOut)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		compressor = zw
		mediaType = MediaTypeTarZstd
	default:
		return nil, fmt.Errorf("unsupported layer compression %q", compression)
	}

	uncompressedHash := sha256.New()
	tw := tar.NewWriter(io.MultiWriter(compressor, uncompressedHash))

	if err := writeTree(tw, rootfsDir); err != nil {
		return nil, fmt.Errorf("archiving %s: %w", rootfsDir, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("closing compressor: %w", err)
	}

	digest := hex.EncodeToString(compressedHash.Sum(nil))
	blobPath := filepath.Join(blobDir, digest)
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing layer temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), blobPath); err != nil {
		return nil, fmt.Errorf("placing layer blob: %w", err)
	}

	return &Layer{
		MediaType: mediaType,
		Digest:    "sha256:" + digest,
		DiffID:    "sha256:" + hex.EncodeToString(uncompressedHash.Sum(nil)),
		Size:      countingOut.n,
		Path:      blobPath,
	}, nil
}

func writeTree(tw *tar.Writer, rootfsDir string) error {
	return filepath.WalkDir(rootfsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootfsDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.ModTime = epoch
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Uname = ""
		hdr.Gname = ""

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("archiving %s: %w", rel, err)
		}
		return nil
	})
}

// Open returns a reader for the uncompressed tar stream of a layer blob.
func Open(blobPath, mediaType string) (io.ReadCloser, error) {
	f, err := os.Open(blobPath)
	if err != nil {
		return nil, fmt.Errorf("opening layer blob: %w", err)
	}

	switch {
	case mediaType == MediaTypeTarGzip || strings.HasSuffix(mediaType, "+gzip"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decompressing gzip layer: %w", err)
		}
		return &layerReader{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case mediaType == MediaTypeTarZstd || strings.HasSuffix(mediaType, "+zstd"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decompressing zstd layer: %w", err)
		}
		return &layerReader{Reader: zr.IOReadCloser(), closers: []io.Closer{f}}, nil
	default:
		return nil, fmt.Errorf("unsupported layer media type %q", mediaType)
	}
}

type layerReader struct {
	io.Reader
	closers []io.Closer
}

func (r *layerReader) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
