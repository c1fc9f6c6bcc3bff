package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func makeTarball(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range entries {
		if content == "" {
			if err := tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
				t.Fatalf("Failed to write dir header: %v", err)
			}
			continue
		}
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to write file header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write file content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFile(t *testing.T) {
	tarball := makeTarball(t, map[string]string{
		"app/":        "",
		"app/main.py": "print('ok')\n",
		"etc/motd":    "welcome\n",
	})

	src := filepath.Join(t.TempDir(), "rootfs.tar.gz")
	if err := os.WriteFile(src, tarball, 0644); err != nil {
		t.Fatalf("Failed to write tarball: %v", err)
	}

	dest := t.TempDir()
	if err := ExtractFile(src, dest); err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "app", "main.py"))
	if err != nil {
		t.Fatalf("Extracted file missing: %v", err)
	}
	if string(got) != "print('ok')\n" {
		t.Errorf("Extracted content mismatch: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "etc", "motd")); err != nil {
		t.Errorf("Expected etc/motd to exist: %v", err)
	}
}

func TestExtractTarRejectsEscape(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: "../escape", Mode: 0644, Size: 4}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	if _, err := tw.Write([]byte("oops")); err != nil {
		t.Fatalf("Failed to write content: %v", err)
	}
	tw.Close()

	if err := ExtractTar(&buf, t.TempDir()); err == nil {
		t.Error("Expected error for path traversal entry")
	}
}

func TestExtractTarRejectsSymlinkParentEscape(t *testing.T) {
	outside := t.TempDir()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "exit", Typeflag: tar.TypeSymlink, Linkname: outside}); err != nil {
		t.Fatalf("Failed to write symlink: %v", err)
	}
	content := []byte("oops")
	if err := tw.WriteHeader(&tar.Header{Name: "exit/escaped.txt", Mode: 0644, Size: int64(len(content))}); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("Failed to write content: %v", err)
	}
	tw.Close()

	if err := ExtractTar(&buf, t.TempDir()); err == nil {
		t.Fatal("Expected error for entry whose parent symlink leaves the root")
	}
	if _, err := os.Stat(filepath.Join(outside, "escaped.txt")); !os.IsNotExist(err) {
		t.Error("File was written outside the extraction root")
	}
}

func TestExtractTarSymlink(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "bin/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatalf("Failed to write dir: %v", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "bin/sh", Typeflag: tar.TypeSymlink, Linkname: "dash"}); err != nil {
		t.Fatalf("Failed to write symlink: %v", err)
	}
	tw.Close()

	dest := t.TempDir()
	if err := ExtractTar(&buf, dest); err != nil {
		t.Fatalf("ExtractTar failed: %v", err)
	}
	link, err := os.Readlink(filepath.Join(dest, "bin", "sh"))
	if err != nil {
		t.Fatalf("Expected symlink: %v", err)
	}
	if link != "dash" {
		t.Errorf("Unexpected symlink target %q", link)
	}
}

func TestDecompressPassthrough(t *testing.T) {
	rc, err := Decompress(bytes.NewReader([]byte("plain")), "file.tar")
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if rc != nil {
		t.Error("Expected nil reader for uncompressed extension")
	}
}
