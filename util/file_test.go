package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileFromBytes(t *testing.T) {
	b := []byte("some image bytes")
	f := FileFromBytes(b)
	p := make([]byte, 5)
	n, err := f.ReadAt(p, 5)
	if err != nil || n != 5 {
		t.Fatalf("ReadAt() = (%d, %v)", n, err)
	}
	if string(p) != "image" {
		t.Errorf("ReadAt() read %q", p)
	}
	size, err := FileSize(f)
	if err != nil {
		t.Fatalf("FileSize() error: %v", err)
	}
	if size != int64(len(b)) {
		t.Errorf("FileSize() = %d, want %d", size, len(b))
	}
}

func TestFileSizeOsFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "img")
	if err := os.WriteFile(name, make([]byte, 12345), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	size, err := FileSize(f)
	if err != nil {
		t.Fatalf("FileSize() error: %v", err)
	}
	if size != 12345 {
		t.Errorf("FileSize() = %d, want 12345", size)
	}
}
