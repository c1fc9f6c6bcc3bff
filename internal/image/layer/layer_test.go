package layer

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func stageTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(dir, "app", "static", "uploads"), 0755); err != nil {
		t.Fatalf("Failed to stage tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app", "main.py"), []byte("print('ok')\n"), 0644); err != nil {
		t.Fatalf("Failed to stage file: %v", err)
	}
	if err := os.Symlink("main.py", filepath.Join(dir, "app", "entry.py")); err != nil {
		t.Fatalf("Failed to stage symlink: %v", err)
	}
	return dir
}

func entryNames(t *testing.T, l *Layer) map[string]*tar.Header {
	t.Helper()
	rc, err := Open(l.Path, l.MediaType)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	entries := map[string]*tar.Header{}
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Reading layer tar: %v", err)
		}
		entries[hdr.Name] = hdr
	}
	return entries
}

func TestPackGzip(t *testing.T) {
	rootfs := stageTree(t)
	blobDir := t.TempDir()

	l, err := Pack(rootfs, blobDir, "gzip")
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if l.MediaType != MediaTypeTarGzip {
		t.Errorf("Expected gzip media type, got %s", l.MediaType)
	}
	if l.Size <= 0 {
		t.Errorf("Expected positive blob size, got %d", l.Size)
	}
	if l.Digest == l.DiffID {
		t.Error("Compressed digest must differ from diff ID")
	}

	entries := entryNames(t, l)
	if _, ok := entries["app/static/uploads/"]; !ok {
		t.Error("Expected directory entry app/static/uploads/")
	}
	if hdr, ok := entries["app/main.py"]; !ok {
		t.Error("Expected file entry app/main.py")
	} else if hdr.ModTime.Unix() != 0 {
		t.Errorf("Expected epoch mtime, got %v", hdr.ModTime)
	}
	if hdr, ok := entries["app/entry.py"]; !ok || hdr.Linkname != "main.py" {
		t.Errorf("Expected symlink entry to main.py, got %+v", hdr)
	}
}

func TestPackZstd(t *testing.T) {
	rootfs := stageTree(t)

	l, err := Pack(rootfs, t.TempDir(), "zstd")
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if l.MediaType != MediaTypeTarZstd {
		t.Errorf("Expected zstd media type, got %s", l.MediaType)
	}
	if _, ok := entryNames(t, l)["app/main.py"]; !ok {
		t.Error("Expected file entry app/main.py in zstd layer")
	}
}

func TestPackDeterministic(t *testing.T) {
	rootfs := stageTree(t)

	first, err := Pack(rootfs, t.TempDir(), "gzip")
	if err != nil {
		t.Fatalf("First pack failed: %v", err)
	}
	second, err := Pack(rootfs, t.TempDir(), "gzip")
	if err != nil {
		t.Fatalf("Second pack failed: %v", err)
	}
	if first.Digest != second.Digest || first.DiffID != second.DiffID {
		t.Errorf("Packing the same tree twice produced different digests: %s vs %s", first.Digest, second.Digest)
	}
}

func TestPackRejectsUnknownCompression(t *testing.T) {
	if _, err := Pack(stageTree(t), t.TempDir(), "lz4"); err == nil {
		t.Error("Expected error for unsupported compression")
	}
}
