package cramfs

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/diskfs/go-cramfs/util"
)

const (
	// Magic identifies a cramfs superblock.
	Magic uint32 = 0x28cd3d45
	// PageSize is the uncompressed size of one logical data block.
	PageSize = 4096

	signature      = "Compressed ROMFS"
	superblockSize = 76 // fixed header plus the 12 byte root inode
	crcOffset      = 32 // position of the fsid crc field within the image

	// MaxFileSize is the largest representable file, bounded by the
	// 24 bit size field of the inode.
	MaxFileSize = 1<<24 - 1
	// MaxNameLength is the longest representable entry name, bounded by
	// the 6 bit namelen field of the inode.
	MaxNameLength = (1<<6 - 1) * 4
)

// Flags are the feature bits of the superblock.
type Flags uint32

const (
	// FlagFsidVersion2 marks fsid version 2, which guarantees a non-zero
	// file count.
	FlagFsidVersion2 Flags = 0x00000001
	// FlagSortedDirs asserts that directory entries are stored sorted by
	// name. An optimization hint only; resolution never depends on it.
	FlagSortedDirs Flags = 0x00000002
	// FlagHoles marks support for sparse all-zero blocks stored as
	// zero-length compressed regions.
	FlagHoles Flags = 0x00000100
	// FlagWrongSignature is reserved.
	FlagWrongSignature Flags = 0x00000200
	// FlagShiftedRootOffset marks a shifted root filesystem.
	FlagShiftedRootOffset Flags = 0x00000400
	// FlagExtBlockPointers marks block pointer extensions: the two high
	// bits of each block pointer carry per-block flags.
	FlagExtBlockPointers Flags = 0x00000800

	supportedFlags = Flags(0xff) | FlagHoles | FlagWrongSignature | FlagShiftedRootOffset | FlagExtBlockPointers
)

// Has reports whether all the given bits are set.
func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	names := []struct {
		flag Flags
		name string
	}{
		{FlagFsidVersion2, "fsid-version-2"},
		{FlagSortedDirs, "sorted-dirs"},
		{FlagHoles, "holes"},
		{FlagWrongSignature, "wrong-signature"},
		{FlagShiftedRootOffset, "shifted-root-offset"},
		{FlagExtBlockPointers, "ext-block-pointers"},
	}
	var set []string
	rest := f
	for _, n := range names {
		if f.Has(n.flag) {
			set = append(set, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		set = append(set, fmt.Sprintf("0x%x", uint32(rest)))
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}

// Superblock is the fixed-format header describing the whole image. Layout,
// little-endian from the start of the filesystem:
//
//	magic(4) | size(4) | flags(4) | future(4) | signature(16) |
//	fsid:{crc(4) edition(4) blocks(4) files(4)} | name(16) | root inode(12)
type Superblock struct {
	Magic     uint32
	Size      uint32
	Flags     Flags
	Future    uint32
	Signature string // raw 16 byte signature, not trimmed
	CRC       uint32
	Edition   uint32
	Blocks    uint32
	Files     uint32
	Name      string // volume name, NUL padding stripped

	root inode
}

// superblockFromBytes decodes the fixed-size header region. It does not
// validate anything beyond the buffer length; see validate.
func superblockFromBytes(b []byte) (*Superblock, error) {
	if len(b) < superblockSize {
		return nil, fmt.Errorf("superblock of %d bytes is too short, must be %d", len(b), superblockSize)
	}
	sb := &Superblock{}
	offset, err := toUint32(b, 0, &sb.Magic)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize magic: %w", err)
	}
	if offset, err = toUint32(b, offset, &sb.Size); err != nil {
		return nil, fmt.Errorf("failed to deserialize size: %w", err)
	}
	var flags uint32
	if offset, err = toUint32(b, offset, &flags); err != nil {
		return nil, fmt.Errorf("failed to deserialize flags: %w", err)
	}
	sb.Flags = Flags(flags)
	if offset, err = toUint32(b, offset, &sb.Future); err != nil {
		return nil, fmt.Errorf("failed to deserialize future: %w", err)
	}
	if offset, err = toString(b, offset, 16, &sb.Signature); err != nil {
		return nil, fmt.Errorf("failed to deserialize signature: %w", err)
	}
	if offset, err = toUint32(b, offset, &sb.CRC); err != nil {
		return nil, fmt.Errorf("failed to deserialize fsid crc: %w", err)
	}
	if offset, err = toUint32(b, offset, &sb.Edition); err != nil {
		return nil, fmt.Errorf("failed to deserialize fsid edition: %w", err)
	}
	if offset, err = toUint32(b, offset, &sb.Blocks); err != nil {
		return nil, fmt.Errorf("failed to deserialize fsid blocks: %w", err)
	}
	if offset, err = toUint32(b, offset, &sb.Files); err != nil {
		return nil, fmt.Errorf("failed to deserialize fsid files: %w", err)
	}
	var name string
	if offset, err = toString(b, offset, 16, &name); err != nil {
		return nil, fmt.Errorf("failed to deserialize name: %w", err)
	}
	sb.Name = strings.TrimRight(name, "\x00")
	if err = sb.root.UnmarshalCramfs(b[offset:]); err != nil {
		return nil, fmt.Errorf("failed to deserialize root inode: %w", err)
	}
	return sb, nil
}

// validate checks that the superblock describes a filesystem this package
// can read. start is the absolute offset of the superblock, used only for
// error context.
func (sb *Superblock) validate(start int64) error {
	if sb.Magic != Magic {
		return &StructuralError{Offset: start, Msg: fmt.Sprintf("wrong magic 0x%x", sb.Magic)}
	}
	if sb.Signature != signature {
		return &StructuralError{Offset: start, Msg: fmt.Sprintf("wrong signature %q", sb.Signature)}
	}
	if sb.Flags&^supportedFlags != 0 {
		return &StructuralError{Offset: start, Msg: fmt.Sprintf("unsupported filesystem features 0x%x", uint32(sb.Flags&^supportedFlags))}
	}
	if sb.Size < PageSize {
		return &StructuralError{Offset: start, Msg: fmt.Sprintf("superblock size %d too small", sb.Size)}
	}
	if sb.Flags.Has(FlagFsidVersion2) && sb.Files == 0 {
		return &StructuralError{Offset: start, Msg: "zero file count"}
	}
	return nil
}

var magicBytes = []byte{0x45, 0x3d, 0xcd, 0x28} // Magic, little-endian

const scanChunkSize = 1 << 20

// Scanner searches a byte source for embedded cramfs superblocks at any
// byte offset. Candidates whose magic or raw signature do not match, or
// whose header is truncated by the end of the source, are skipped. Use it
// like bufio.Scanner:
//
//	scanner := cramfs.NewScanner(file, size)
//	for scanner.Next() {
//		fmt.Println(scanner.Offset(), scanner.Superblock().Name)
//	}
//	if err := scanner.Err(); err != nil { ... }
type Scanner struct {
	f       util.File
	size    int64
	pos     int64
	carry   []byte
	pending []int64
	offset  int64
	sb      *Superblock
	err     error
}

// NewScanner returns a Scanner over the first size bytes of f.
func NewScanner(f util.File, size int64) *Scanner {
	return &Scanner{f: f, size: size}
}

// Next advances to the next superblock found in the source. It returns
// false when the source is exhausted or a read failed; Err distinguishes
// the two.
func (s *Scanner) Next() bool {
	for s.err == nil {
		for len(s.pending) > 0 {
			offset := s.pending[0]
			s.pending = s.pending[1:]
			if sb := s.candidate(offset); sb != nil {
				s.offset, s.sb = offset, sb
				return true
			}
			if s.err != nil {
				return false
			}
		}
		if s.pos >= s.size {
			return false
		}
		s.scanChunk()
	}
	return false
}

// Offset returns the absolute byte offset of the superblock found by the
// last call to Next.
func (s *Scanner) Offset() int64 { return s.offset }

// Superblock returns the superblock found by the last call to Next.
func (s *Scanner) Superblock() *Superblock { return s.sb }

// Err returns the first read error encountered while scanning. Malformed
// candidates are not errors; they are skipped.
func (s *Scanner) Err() error { return s.err }

// scanChunk reads the next chunk and records every position of the magic
// bytes. The last len(magic)-1 bytes of each chunk are carried over so a
// magic straddling a chunk boundary is not missed.
func (s *Scanner) scanChunk() {
	n := s.size - s.pos
	if n > scanChunkSize {
		n = scanChunkSize
	}
	buf := make([]byte, int64(len(s.carry))+n)
	copy(buf, s.carry)
	read, err := s.f.ReadAt(buf[len(s.carry):], s.pos)
	if int64(read) < n {
		if err == nil {
			err = fmt.Errorf("short read of %d bytes at offset %d", read, s.pos)
		}
		s.err = fmt.Errorf("could not read chunk at offset %d: %w", s.pos, err)
		return
	}
	base := s.pos - int64(len(s.carry))
	for idx := bytes.Index(buf, magicBytes); idx != -1; {
		s.pending = append(s.pending, base+int64(idx))
		next := bytes.Index(buf[idx+1:], magicBytes)
		if next == -1 {
			break
		}
		idx += 1 + next
	}
	if len(buf) >= len(magicBytes)-1 {
		s.carry = append(s.carry[:0], buf[len(buf)-(len(magicBytes)-1):]...)
	}
	s.pos += n
}

// candidate decodes the header at offset and keeps it only if both the
// magic and the raw signature match. The magic alone can show up in
// arbitrary data.
func (s *Scanner) candidate(offset int64) *Superblock {
	if offset+superblockSize > s.size {
		return nil
	}
	b := make([]byte, superblockSize)
	if _, err := s.f.ReadAt(b, offset); err != nil {
		s.err = fmt.Errorf("could not read superblock candidate at offset %d: %w", offset, err)
		return nil
	}
	sb, err := superblockFromBytes(b)
	if err != nil || sb.Magic != Magic || sb.Signature != signature {
		return nil
	}
	return sb
}
