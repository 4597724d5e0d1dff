// Package filesystem provides the interfaces for read-only filesystem
// implementations in this module.
package filesystem

import (
	"io"
	"os"
)

// Type constants for the different filesystem types.
type Type int

const (
	// TypeCramfs is a compressed read-only ROM filesystem
	TypeCramfs Type = iota
)

// FileSystem is the interface to a read-only filesystem on disk.
type FileSystem interface {
	// Type returns the type code of this filesystem.
	Type() Type
	// Label returns the volume name, if any.
	Label() string
	// ReadDir returns the contents of the directory at the given path.
	ReadDir(string) ([]os.FileInfo, error)
	// OpenFile opens the file at the given path for reading. Write flags
	// are rejected.
	OpenFile(string, int) (File, error)
	// Close releases the underlying byte source, if it is closable.
	Close() error
}

// File is a single open file in a read-only FileSystem.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}
