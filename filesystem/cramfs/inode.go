package cramfs

import (
	"encoding/binary"
	"fmt"
	"os"
)

const inodeSize = 12

// file type bits in the upper nibble of the inode mode, as in sys/stat.h
type fileType uint16

const (
	fileTypeFifo            fileType = 0x1000
	fileTypeCharacterDevice fileType = 0x2000
	fileTypeDirectory       fileType = 0x4000
	fileTypeBlockDevice     fileType = 0x6000
	fileTypeRegularFile     fileType = 0x8000
	fileTypeSymbolicLink    fileType = 0xa000
	fileTypeSocket          fileType = 0xc000
	fileTypeMask            fileType = 0xf000

	modeSetuid uint16 = 0o4000
	modeSetgid uint16 = 0o2000
	modeSticky uint16 = 0o1000
)

// inode is the packed 12-byte on-disk record describing one entry. The
// bit layout is fixed by the format, packed little-endian across three
// 32-bit words:
//
//	word 0: mode (16 bits) | uid (16 bits)
//	word 1: size (24 bits) | gid (8 bits)
//	word 2: namelen (6 bits) | offset (26 bits)
//
// namelen and offset are stored in 4-byte units. size is capped at
// 2^24-1 bytes; larger files cannot be represented.
type inode struct {
	mode    uint16
	uid     uint16
	size    uint32
	gid     uint8
	namelen uint8
	offset  uint32
}

func (in *inode) Size() int { return inodeSize }

func (in *inode) UnmarshalCramfs(b []byte) error {
	if len(b) < inodeSize {
		return fmt.Errorf("inode record of %d bytes is too short, must be %d", len(b), inodeSize)
	}
	w0 := binary.LittleEndian.Uint32(b[0:4])
	w1 := binary.LittleEndian.Uint32(b[4:8])
	w2 := binary.LittleEndian.Uint32(b[8:12])
	in.mode = uint16(w0 & 0xffff)
	in.uid = uint16(w0 >> 16)
	in.size = w1 & 0xffffff
	in.gid = uint8(w1 >> 24)
	in.namelen = uint8(w2 & 0x3f)
	in.offset = w2 >> 6
	return nil
}

func (in *inode) MarshalCramfs(b []byte) error {
	if len(b) < inodeSize {
		return fmt.Errorf("inode buffer of %d bytes is too short, must be %d", len(b), inodeSize)
	}
	if in.size > 0xffffff {
		return fmt.Errorf("size %d does not fit in the 24 bit size field", in.size)
	}
	if in.namelen > 0x3f {
		return fmt.Errorf("name length %d does not fit in the 6 bit namelen field", in.namelen)
	}
	if in.offset > 0x3ffffff {
		return fmt.Errorf("offset %d does not fit in the 26 bit offset field", in.offset)
	}
	binary.LittleEndian.PutUint32(b[0:4], uint32(in.mode)|uint32(in.uid)<<16)
	binary.LittleEndian.PutUint32(b[4:8], in.size|uint32(in.gid)<<24)
	binary.LittleEndian.PutUint32(b[8:12], uint32(in.namelen)|in.offset<<6)
	return nil
}

func (in *inode) entryType() fileType { return fileType(in.mode) & fileTypeMask }

// nameLength is the on-disk length of the entry name in bytes, including
// NUL padding up to a multiple of 4.
func (in *inode) nameLength() int { return int(in.namelen) * 4 }

// dataOffset is the absolute position of the entry's data: the first child
// record for directories, the block pointer table for regular files and
// symlinks, unused for everything else.
func (in *inode) dataOffset() int64 { return int64(in.offset) * 4 }

// fileMode maps the inode mode to an os.FileMode.
func (in *inode) fileMode() os.FileMode {
	mode := os.FileMode(in.mode & 0o777)
	switch in.entryType() {
	case fileTypeDirectory:
		mode |= os.ModeDir
	case fileTypeSymbolicLink:
		mode |= os.ModeSymlink
	case fileTypeBlockDevice:
		mode |= os.ModeDevice
	case fileTypeCharacterDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case fileTypeFifo:
		mode |= os.ModeNamedPipe
	case fileTypeSocket:
		mode |= os.ModeSocket
	}
	if in.mode&modeSetuid != 0 {
		mode |= os.ModeSetuid
	}
	if in.mode&modeSetgid != 0 {
		mode |= os.ModeSetgid
	}
	if in.mode&modeSticky != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
