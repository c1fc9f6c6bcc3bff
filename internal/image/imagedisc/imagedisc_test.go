package imagedisc

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-diskfs/partition/gpt"
)

func TestBasicImageDiscWorkflow(t *testing.T) {
	tempDir := t.TempDir()
	imgPath := filepath.Join(tempDir, "test.img")
	sizeBytes := uint64(72 * 1024 * 1024)

	if err := CreateImageDisc(imgPath, sizeBytes); err != nil {
		t.Fatalf("CreateImageDisc failed: %v", err)
	}

	parts := []PartitionInfo{
		{
			Name:      "rootfs",
			SizeBytes: 64 * 1024 * 1024,
			TypeGUID:  string(gpt.LinuxFilesystem),
		},
	}
	if err := PartitionImageDisc(imgPath, parts); err != nil {
		t.Fatalf("PartitionImageDisc failed: %v", err)
	}

	if err := FormatPartition(imgPath, 1, "fat32"); err != nil {
		t.Fatalf("FormatPartition failed: %v", err)
	}

	fs, err := MountImageDisc(imgPath, 1)
	if err != nil {
		t.Fatalf("MountImageDisc failed: %v", err)
	}
	entries, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("filesystem ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty root filesystem, got %d entries", len(entries))
	}

	if err := UnmountImageDisc(fs); err != nil {
		t.Fatalf("UnmountImageDisc failed: %v", err)
	}

	if err := FormatPartition(imgPath, 1, "ext4"); err == nil {
		t.Error("Expected error for unsupported filesystem type")
	}
}

func TestPartitionValidation(t *testing.T) {
	tempDir := t.TempDir()
	imgPath := filepath.Join(tempDir, "test.img")
	if err := CreateImageDisc(imgPath, 8*1024*1024); err != nil {
		t.Fatalf("CreateImageDisc failed: %v", err)
	}

	tests := []struct {
		name string
		part PartitionInfo
	}{
		{"zero size", PartitionInfo{Name: "p", TypeGUID: string(gpt.LinuxFilesystem)}},
		{"empty type", PartitionInfo{Name: "p", SizeBytes: 1024 * 1024}},
		{"empty name", PartitionInfo{SizeBytes: 1024 * 1024, TypeGUID: string(gpt.LinuxFilesystem)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := PartitionImageDisc(imgPath, []PartitionInfo{tt.part}); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestCopyTree(t *testing.T) {
	hostDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(hostDir, "app", "static"), 0755); err != nil {
		t.Fatalf("Failed to stage tree: %v", err)
	}
	content := []byte("print('ok')\n")
	if err := os.WriteFile(filepath.Join(hostDir, "app", "main.py"), content, 0644); err != nil {
		t.Fatalf("Failed to stage file: %v", err)
	}

	imgPath := filepath.Join(t.TempDir(), "test.img")
	if err := CreateImageDisc(imgPath, 72*1024*1024); err != nil {
		t.Fatalf("CreateImageDisc failed: %v", err)
	}
	parts := []PartitionInfo{
		{Name: "rootfs", SizeBytes: 64 * 1024 * 1024, TypeGUID: string(gpt.LinuxFilesystem)},
	}
	if err := PartitionImageDisc(imgPath, parts); err != nil {
		t.Fatalf("PartitionImageDisc failed: %v", err)
	}
	if err := FormatPartition(imgPath, 1, "fat32"); err != nil {
		t.Fatalf("FormatPartition failed: %v", err)
	}

	fs, err := MountImageDisc(imgPath, 1)
	if err != nil {
		t.Fatalf("MountImageDisc failed: %v", err)
	}
	if err := CopyTree(fs, hostDir); err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}
	if err := UnmountImageDisc(fs); err != nil {
		t.Fatalf("UnmountImageDisc failed: %v", err)
	}

	// Reopen and verify the copied file
	fs, err = MountImageDisc(imgPath, 1)
	if err != nil {
		t.Fatalf("MountImageDisc failed after copy: %v", err)
	}
	f, err := fs.OpenFile("/app/main.py", os.O_RDONLY)
	if err != nil {
		t.Fatalf("OpenFile in image failed: %v", err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("Reading file from image failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Copied content mismatch: %q", got)
	}
	if err := UnmountImageDisc(fs); err != nil {
		t.Fatalf("UnmountImageDisc failed: %v", err)
	}
}

func TestTreeSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0644); err != nil {
		t.Fatalf("Failed to stage file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b"), make([]byte, 50), 0644); err != nil {
		t.Fatalf("Failed to stage file: %v", err)
	}

	size, err := TreeSize(dir)
	if err != nil {
		t.Fatalf("TreeSize failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Expected 150 bytes, got %d", size)
	}
}
