// Package cramfs reads cramfs filesystem images: the compressed,
// read-only ROM filesystem historically used in embedded Linux firmware.
// It locates and validates the superblock (including scanning arbitrary
// buffers for images embedded at non-zero offsets), decodes the packed
// inode records, builds the directory tree lazily, and reconstructs file
// content from per-block zlib-compressed regions.
package cramfs

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path"
	"time"

	"github.com/diskfs/go-cramfs/filesystem"
	"github.com/diskfs/go-cramfs/util"
)

type marshaler interface {
	Size() int
	MarshalCramfs(b []byte) error
}

type unmarshaler interface {
	UnmarshalCramfs([]byte) error
}

// FileSystem implements a read-only view of one cramfs image. It owns the
// backing byte source for its lifetime; all reads are bounded by the size
// recorded in the superblock.
type FileSystem struct {
	file       util.File
	superblock *Superblock
	root       *Entry
	size       int64
	start      int64
}

// Read opens the cramfs filesystem whose superblock starts at byte offset
// start of file. The superblock is read and fully validated eagerly; the
// directory tree is built lazily as it is visited. The image CRC is not
// checked here, see CheckCRC.
func Read(file util.File, start int64) (*FileSystem, error) {
	b := make([]byte, superblockSize)
	n, err := file.ReadAt(b, start)
	if err != nil && (err != io.EOF || n < superblockSize) {
		return nil, &StructuralError{Offset: start, Msg: fmt.Sprintf("could not read superblock: %v", err)}
	}
	sb, err := superblockFromBytes(b)
	if err != nil {
		return nil, &StructuralError{Offset: start, Msg: err.Error()}
	}
	if err = sb.validate(start); err != nil {
		return nil, err
	}
	fs := &FileSystem{
		file:       file,
		superblock: sb,
		size:       int64(sb.Size),
		start:      start,
	}
	fs.root = &Entry{fs: fs, inode: sb.root}
	return fs, nil
}

// Open opens the cramfs filesystem in the named file, with its superblock
// at byte offset start. The file is closed again if the image fails
// validation, and by (*FileSystem).Close once the caller is done.
func Open(name string, start int64) (*FileSystem, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	fs, err := Read(f, start)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return fs, nil
}

// readAt reads length bytes at the image-relative offset off. Offsets
// decoded from the image are untrusted; anything outside [0, size) is a
// BoundsError.
func (fs *FileSystem) readAt(off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off+length > fs.size {
		return nil, &BoundsError{Offset: off, Length: length, Size: fs.size}
	}
	b := make([]byte, length)
	n, err := fs.file.ReadAt(b, fs.start+off)
	if err != nil && (err != io.EOF || int64(n) < length) {
		return nil, fmt.Errorf("could not read %d bytes at offset %d: %w", length, off, err)
	}
	return b, nil
}

// Type returns the type code for the filesystem. Always returns
// filesystem.TypeCramfs.
func (fs *FileSystem) Type() filesystem.Type { return filesystem.TypeCramfs }

// Label returns the volume name recorded in the superblock.
func (fs *FileSystem) Label() string { return fs.superblock.Name }

// Size returns the image size in bytes as recorded in the superblock.
func (fs *FileSystem) Size() int64 { return fs.size }

// FileCount returns the number of files recorded in the superblock. It is
// trusted metadata, not recomputed; see (*Entry).Total for the derived
// count.
func (fs *FileSystem) FileCount() uint32 { return fs.superblock.Files }

// Superblock returns the decoded superblock.
func (fs *FileSystem) Superblock() *Superblock { return fs.superblock }

// Root returns the root directory of the tree.
func (fs *FileSystem) Root() *Entry { return fs.root }

// Select resolves an absolute or relative path from the root. See
// (*Entry).Select.
func (fs *FileSystem) Select(p string) (*Entry, error) { return fs.root.Select(p) }

// Contains reports whether the given path resolves to an entry.
func (fs *FileSystem) Contains(p string) bool {
	_, err := fs.root.Select(p)
	return err == nil
}

// Find returns the first entry in the tree, in pre-order, with the given
// base name, or nil if there is none.
func (fs *FileSystem) Find(filename string) (*Entry, error) { return fs.root.Find(filename) }

// Walk traverses the whole tree depth-first in pre-order. See
// (*Entry).Walk.
func (fs *FileSystem) Walk(fn func(*Entry) error) error { return fs.root.Walk(fn) }

// Match returns every entry whose absolute path matches the pattern. See
// (*Entry).Match.
func (fs *FileSystem) Match(pattern string) ([]*Entry, error) { return fs.root.Match(pattern) }

// CalculateCRC recomputes the IEEE CRC32 of the entire image with the
// superblock's own crc field zeroed for the duration of the computation,
// and returns the computed value for comparison with the stored one. It
// is never invoked implicitly: the format allows reading undamaged parts
// of a partially corrupt image.
func (fs *FileSystem) CalculateCRC() (uint32, error) {
	var crc uint32
	for off := int64(0); off < fs.size; off += scanChunkSize {
		length := fs.size - off
		if length > scanChunkSize {
			length = scanChunkSize
		}
		b, err := fs.readAt(off, length)
		if err != nil {
			return 0, err
		}
		// the crc field reads as zero during its own computation
		for i := int64(crcOffset); i < crcOffset+4; i++ {
			if i >= off && i < off+length {
				b[i-off] = 0
			}
		}
		crc = crc32.Update(crc, crc32.IEEETable, b)
	}
	return crc, nil
}

// CheckCRC recomputes the image CRC and returns an IntegrityError if it
// differs from the stored one.
func (fs *FileSystem) CheckCRC() error {
	crc, err := fs.CalculateCRC()
	if err != nil {
		return err
	}
	if crc != fs.superblock.CRC {
		return &IntegrityError{Block: -1, Msg: fmt.Sprintf("image crc 0x%08x does not match stored crc 0x%08x", crc, fs.superblock.CRC)}
	}
	return nil
}

// ReadDir returns the contents of the directory at the given path as a
// slice of os.FileInfo.
func (fs *FileSystem) ReadDir(p string) ([]os.FileInfo, error) {
	entry, err := fs.Select(p)
	if err != nil {
		return nil, err
	}
	children, err := entry.Children()
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, len(children))
	for i, child := range children {
		infos[i] = &FileInfo{
			name:  child.name,
			size:  child.Size(),
			mode:  child.Mode(),
			isDir: child.IsDir(),
		}
	}
	return infos, nil
}

// OpenFile returns a read-only filesystem.File with the decompressed
// content of the file at the given path. Write flags are rejected:
// the filesystem is immutable. Symlinks are followed.
func (fs *FileSystem) OpenFile(p string, flag int) (filesystem.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, fmt.Errorf("cramfs is read-only: cannot open %s for writing", p)
	}
	entry, err := fs.Select(p)
	if err != nil {
		return nil, err
	}
	// follow symlinks to their target, resolving relative targets
	// against the containing directory
	for depth := 0; entry.IsSymlink(); depth++ {
		if depth >= 40 {
			return nil, fmt.Errorf("cramfs: too many levels of symbolic links opening %s", p)
		}
		target, err := entry.Readlink()
		if err != nil {
			return nil, err
		}
		if !path.IsAbs(target) {
			target = path.Join(path.Dir(entry.Path()), target)
		}
		if entry, err = fs.Select(target); err != nil {
			return nil, err
		}
	}
	switch {
	case entry.IsRegular():
	case entry.IsDir():
		return nil, fmt.Errorf("cannot open directory %s as file", p)
	case entry.IsCharDevice():
		return nil, fmt.Errorf("cannot open character device %s as file", p)
	case entry.IsBlockDevice():
		return nil, fmt.Errorf("cannot open block device %s as file", p)
	case entry.IsFifo():
		return nil, fmt.Errorf("cannot open fifo %s as file", p)
	case entry.IsSocket():
		return nil, fmt.Errorf("cannot open socket %s as file", p)
	default:
		return nil, fmt.Errorf("cannot open unknown file type %#o %s as file", entry.inode.mode, p)
	}
	return &File{entry: entry}, nil
}

// Close releases the underlying byte source if it is closable. The
// filesystem must not be used afterwards.
func (fs *FileSystem) Close() error {
	if closer, ok := fs.file.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// FileInfo implements os.FileInfo for one directory entry.
type FileInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	isDir bool
}

func (fi *FileInfo) Name() string      { return fi.name }
func (fi *FileInfo) Size() int64       { return fi.size }
func (fi *FileInfo) Mode() os.FileMode { return fi.mode }

// ModTime returns the zero time: the format stores no timestamps.
func (fi *FileInfo) ModTime() time.Time { return time.Time{} }
func (fi *FileInfo) IsDir() bool        { return fi.isDir }
func (fi *FileInfo) Sys() interface{}   { return nil }
