package cramfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// per-block flag bits carried in the high bits of a block pointer when
// FlagExtBlockPointers is set
const (
	blockUncompressed  uint32 = 1 << 31
	blockDirectPointer uint32 = 1 << 30
	blockPointerFlags         = blockUncompressed | blockDirectPointer
)

// blockCount returns the number of logical PageSize blocks of a regular
// file or symlink.
func (e *Entry) blockCount() int {
	return int((e.inode.size + PageSize - 1) / PageSize)
}

// blockPointers reads and memoizes the block pointer table: one cumulative
// little-endian end offset per logical block, located at the inode's data
// offset.
func (e *Entry) blockPointers() ([]uint32, error) {
	if e.blocks != nil {
		return e.blocks, nil
	}
	count := e.blockCount()
	if count == 0 {
		e.blocks = []uint32{}
		return e.blocks, nil
	}
	b, err := e.fs.readAt(e.inode.dataOffset(), int64(4*count))
	if err != nil {
		return nil, err
	}
	pointers := make([]uint32, count)
	for i := range pointers {
		pointers[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	e.blocks = pointers
	return pointers, nil
}

// readBlock returns the decompressed content of logical block index. The
// compressed region of block i starts where block i-1 ended, except block
// 0 which starts immediately after the pointer table. A zero-length
// region is a hole, a full block of zero bytes, when the holes flag is
// set. Decompression failures and short blocks surface as IntegrityError
// naming the block index; blocks already returned are unaffected.
func (e *Entry) readBlock(index int) ([]byte, error) {
	pointers, err := e.blockPointers()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pointers) {
		return nil, fmt.Errorf("cramfs: block index %d out of range for %d blocks", index, len(pointers))
	}
	pointer := pointers[index]
	if pointer&blockDirectPointer != 0 {
		return nil, &StructuralError{Offset: e.inode.dataOffset() + int64(4*index), Msg: "direct block pointers (non-linear data layout) are not supported"}
	}
	start := e.inode.dataOffset() + int64(4*len(pointers))
	if index > 0 {
		start = int64(pointers[index-1] &^ blockPointerFlags)
	}
	end := int64(pointer &^ blockPointerFlags)

	want := int64(e.inode.size) - int64(index)*PageSize
	if want > PageSize {
		want = PageSize
	}
	if end < start {
		return nil, &IntegrityError{Block: index, Msg: fmt.Sprintf("block region end %d before start %d", end, start)}
	}
	if start == end {
		if !e.fs.superblock.Flags.Has(FlagHoles) {
			return nil, &IntegrityError{Block: index, Msg: "zero length block region without hole support"}
		}
		return make([]byte, want), nil
	}
	b, err := e.fs.readAt(start, end-start)
	if err != nil {
		return nil, err
	}
	if pointer&blockUncompressed != 0 {
		if int64(len(b)) != want {
			return nil, &IntegrityError{Block: index, Msg: fmt.Sprintf("uncompressed block is %d bytes, expected %d", len(b), want)}
		}
		return b, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &IntegrityError{Block: index, Msg: "could not decompress block", Err: err}
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, &IntegrityError{Block: index, Msg: "could not decompress block", Err: err}
	}
	if int64(len(data)) != want {
		return nil, &IntegrityError{Block: index, Msg: fmt.Sprintf("block inflated to %d bytes, expected %d", len(data), want)}
	}
	return data, nil
}

// ReadBytes returns the full decompressed content of a regular file or
// symlink target: the concatenation of all its blocks in index order.
func (e *Entry) ReadBytes() ([]byte, error) {
	if !e.IsRegular() && !e.IsSymlink() {
		return nil, fmt.Errorf("cramfs: %s has no data content", e.Path())
	}
	out := make([]byte, 0, e.inode.size)
	for i, count := 0, e.blockCount(); i < count; i++ {
		block, err := e.readBlock(i)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// WriteTo streams the full decompressed content to w, one block at a time.
func (e *Entry) WriteTo(w io.Writer) (int64, error) {
	if !e.IsRegular() && !e.IsSymlink() {
		return 0, fmt.Errorf("cramfs: %s has no data content", e.Path())
	}
	var written int64
	for i, count := 0, e.blockCount(); i < count; i++ {
		block, err := e.readBlock(i)
		if err != nil {
			return written, err
		}
		n, err := w.Write(block)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Readlink returns the target of a symlink, exactly the bytes stored in
// its data blocks with no trailing NUL.
func (e *Entry) Readlink() (string, error) {
	if !e.IsSymlink() {
		return "", fmt.Errorf("cramfs: %s is not a symlink", e.Path())
	}
	b, err := e.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readRange fills p with file content starting at byte offset off,
// decompressing only the blocks that intersect the requested range.
func (e *Entry) readRange(p []byte, off int64) (int, error) {
	size := int64(e.inode.size)
	if off < 0 {
		return 0, fmt.Errorf("cramfs: negative read offset %d", off)
	}
	if off >= size {
		return 0, io.EOF
	}
	n := 0
	for index := int(off / PageSize); n < len(p) && index < e.blockCount(); index++ {
		block, err := e.readBlock(index)
		if err != nil {
			return n, err
		}
		within := off + int64(n) - int64(index)*PageSize
		n += copy(p[n:], block[within:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// File is a single open regular file, implementing the read-only
// filesystem.File surface over the entry's decompressed content.
type File struct {
	entry  *Entry
	offset int64
	closed bool
}

// Entry returns the tree entry this file was opened from.
func (f *File) Entry() *Entry { return f.entry }

func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("cramfs: file %s is closed", f.entry.Path())
	}
	return f.entry.readRange(p, off)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.offset + offset
	case io.SeekEnd:
		next = f.entry.Size() + offset
	default:
		return 0, fmt.Errorf("cramfs: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("cramfs: cannot seek before the start of the file")
	}
	f.offset = next
	return next, nil
}

// Close marks the file closed. It never fails; the underlying byte source
// belongs to the FileSystem and stays open.
func (f *File) Close() error {
	f.closed = true
	return nil
}
