package cramfs

// Test images are built in memory by a miniature image writer: a
// mkcramfs just big enough for the features the reader supports. Layout:
// superblock and root inode first, then the child record regions of
// every directory in pre-order, then per-file block pointer tables and
// compressed data.

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
)

type testNode struct {
	name     string
	mode     uint16
	uid      uint16
	gid      uint8
	content  []byte // regular file content or symlink target
	dev      uint32 // device nodes: packed major/minor, stored in the size field
	children []*testNode
	raw      bool // store blocks uncompressed, flagged via ext block pointers

	// assigned during layout
	offset  uint32
	size    uint32
	blobs   [][]byte // compressed (or raw) block regions
	rawFlag []bool   // per block, whether the uncompressed flag is set
}

func testDir(name string, perm uint16, children ...*testNode) *testNode {
	return &testNode{name: name, mode: uint16(fileTypeDirectory) | perm, children: children}
}

func testFile(name string, perm uint16, content []byte) *testNode {
	return &testNode{name: name, mode: uint16(fileTypeRegularFile) | perm, content: content}
}

func testSymlink(name, target string) *testNode {
	return &testNode{name: name, mode: uint16(fileTypeSymbolicLink) | 0o777, content: []byte(target)}
}

func testCharDev(name string, perm uint16, major, minor uint32) *testNode {
	return &testNode{name: name, mode: uint16(fileTypeCharacterDevice) | perm, dev: major<<8 | minor}
}

func testFifo(name string, perm uint16) *testNode {
	return &testNode{name: name, mode: uint16(fileTypeFifo) | perm}
}

func testSocket(name string, perm uint16) *testNode {
	return &testNode{name: name, mode: uint16(fileTypeSocket) | perm}
}

func align4(n int) int { return (n + 3) &^ 3 }

func (n *testNode) isDir() bool { return fileType(n.mode)&fileTypeMask == fileTypeDirectory }
func (n *testNode) hasData() bool {
	t := fileType(n.mode) & fileTypeMask
	return (t == fileTypeRegularFile || t == fileTypeSymbolicLink) && len(n.content) > 0
}

func (n *testNode) dirSize() int {
	size := 0
	for _, child := range n.children {
		size += inodeSize + align4(len(child.name))
	}
	return size
}

// sizeField is the value stored in the inode size field, which depends on
// the entry type.
func (n *testNode) sizeField() uint32 {
	switch fileType(n.mode) & fileTypeMask {
	case fileTypeDirectory:
		return uint32(n.dirSize())
	case fileTypeRegularFile, fileTypeSymbolicLink:
		return uint32(len(n.content))
	case fileTypeCharacterDevice, fileTypeBlockDevice:
		return n.dev
	}
	return 0
}

func preOrder(n *testNode, fn func(*testNode)) {
	fn(n)
	for _, child := range n.children {
		preOrder(child, fn)
	}
}

// buildImage serializes a tree into a complete, CRC-valid cramfs image.
func buildImage(t *testing.T, root *testNode, flags Flags, name string) []byte {
	t.Helper()

	if flags.Has(FlagSortedDirs) {
		preOrder(root, func(n *testNode) {
			sort.Slice(n.children, func(i, j int) bool { return n.children[i].name < n.children[j].name })
		})
	}

	// pass 1: directory record regions, pre-order, starting right after
	// the superblock
	cur := superblockSize
	entries := 0
	preOrder(root, func(n *testNode) {
		entries++
		if n.isDir() {
			if size := n.dirSize(); size > 0 {
				n.offset, n.size = uint32(cur), uint32(size)
				cur += size
			}
		}
	})

	// pass 2: block pointer tables and block data
	totalBlocks := 0
	preOrder(root, func(n *testNode) {
		if !n.hasData() {
			return
		}
		for pos := 0; pos < len(n.content); pos += PageSize {
			end := pos + PageSize
			if end > len(n.content) {
				end = len(n.content)
			}
			block := n.content[pos:end]
			switch {
			case flags.Has(FlagHoles) && allZero(block):
				n.blobs = append(n.blobs, nil)
				n.rawFlag = append(n.rawFlag, false)
			case n.raw:
				n.blobs = append(n.blobs, block)
				n.rawFlag = append(n.rawFlag, true)
			default:
				n.blobs = append(n.blobs, deflate(t, block))
				n.rawFlag = append(n.rawFlag, false)
			}
		}
		totalBlocks += len(n.blobs)
		cur = align4(cur)
		n.offset = uint32(cur)
		cur += 4 * len(n.blobs)
		for _, blob := range n.blobs {
			cur += len(blob)
		}
	})

	size := align4(cur)
	if size%PageSize != 0 {
		size += PageSize - size%PageSize
	}
	img := make([]byte, size)

	// superblock
	binary.LittleEndian.PutUint32(img[0:], Magic)
	binary.LittleEndian.PutUint32(img[4:], uint32(size))
	binary.LittleEndian.PutUint32(img[8:], uint32(flags))
	copy(img[16:], signature)
	binary.LittleEndian.PutUint32(img[40:], uint32(totalBlocks))
	binary.LittleEndian.PutUint32(img[44:], uint32(entries))
	copy(img[48:], name)
	writeInode(t, img[64:], root)

	// directory records
	preOrder(root, func(n *testNode) {
		if !n.isDir() || n.size == 0 {
			return
		}
		pos := int(n.offset)
		for _, child := range n.children {
			writeInode(t, img[pos:], child)
			pos += inodeSize
			pos += copy(img[pos:pos+align4(len(child.name))], child.name)
			pos += align4(len(child.name)) - len(child.name)
		}
	})

	// block pointer tables and data
	preOrder(root, func(n *testNode) {
		if !n.hasData() {
			return
		}
		table := int(n.offset)
		pos := table + 4*len(n.blobs)
		for i, blob := range n.blobs {
			pos += copy(img[pos:], blob)
			pointer := uint32(pos)
			if n.rawFlag[i] {
				pointer |= blockUncompressed
			}
			binary.LittleEndian.PutUint32(img[table+4*i:], pointer)
		}
	})

	// whole-image crc, computed with its own field zeroed
	crc := crc32.ChecksumIEEE(img)
	binary.LittleEndian.PutUint32(img[crcOffset:], crc)
	return img
}

func writeInode(t *testing.T, b []byte, n *testNode) {
	t.Helper()
	in := inode{
		mode:    n.mode,
		uid:     n.uid,
		size:    n.sizeField(),
		gid:     n.gid,
		namelen: uint8(align4(len(n.name)) / 4),
		offset:  n.offset / 4,
	}
	if err := in.MarshalCramfs(b); err != nil {
		t.Fatalf("could not marshal inode for %q: %v", n.name, err)
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func deflate(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		t.Fatalf("could not compress block: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("could not compress block: %v", err)
	}
	return buf.Bytes()
}

// testTree is the standard fixture: a small rootfs with every entry type.
func testTree() *testNode {
	return testDir("", 0o755,
		testDir("etc", 0o755,
			testFile("passwd", 0o644, testPasswd()),
		),
		testFile("big.bin", 0o644, testPattern(10000)),
		testFile("empty", 0o600, nil),
		testDir("emptydir", 0o700),
		testSymlink("lnk", "etc/passwd"),
		testDir("dev", 0o755,
			testCharDev("console", 0o620, 5, 1),
			testFifo("fifo", 0o644),
			testSocket("sock", 0o644),
		),
	)
}

// testPasswd returns exactly 1024 bytes of passwd-looking text.
func testPasswd() []byte {
	line := []byte("root:x:0:0:root:/root:/bin/sh\n")
	b := bytes.Repeat(line, 1024/len(line)+1)
	return b[:1024]
}

// testPattern returns n bytes of a deterministic, mildly compressible
// pattern.
func testPattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/256)
	}
	return b
}

func testImage(t *testing.T) []byte {
	t.Helper()
	return buildImage(t, testTree(), FlagFsidVersion2|FlagSortedDirs, "testrootfs")
}

func testFS(t *testing.T) *FileSystem {
	t.Helper()
	fs, err := Read(bytes.NewReader(testImage(t)), 0)
	if err != nil {
		t.Fatalf("could not open test image: %v", err)
	}
	return fs
}
