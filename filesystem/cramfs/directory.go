package cramfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
)

// Entry is a single entry in the filesystem tree: a directory, regular
// file, symlink, device node, FIFO or socket, discriminated by its inode
// mode. The root directory has an empty name and no parent.
//
// Directory children are built lazily on first access and memoized, so
// only the subtrees actually visited are read from the image.
type Entry struct {
	fs     *FileSystem
	inode  inode
	name   string
	parent *Entry

	// directories only, populated by build
	built    bool
	children []*Entry
	byName   map[string]*Entry
	total    int

	// regular files and symlinks only, populated by blockPointers
	blocks []uint32
}

// Name returns the entry name. The root directory's name is empty.
func (e *Entry) Name() string { return e.name }

// Path returns the absolute path of the entry within its filesystem.
func (e *Entry) Path() string {
	if e.parent == nil {
		return "/"
	}
	return path.Join(e.parent.Path(), e.name)
}

// Parent returns the containing directory, or nil for the root.
func (e *Entry) Parent() *Entry { return e.parent }

// Mode returns the entry's mode mapped to an os.FileMode.
func (e *Entry) Mode() os.FileMode { return e.inode.fileMode() }

// UID returns the owning user id.
func (e *Entry) UID() int { return int(e.inode.uid) }

// GID returns the owning group id. The on-disk field is 8 bits wide, so
// group ids above 255 are truncated at image creation time.
func (e *Entry) GID() int { return int(e.inode.gid) }

// Size returns the inode size field. Its meaning depends on the entry
// type: uncompressed byte size for regular files and symlink targets, the
// byte length of the child records for directories, the packed device
// number for device nodes, zero for FIFOs and sockets.
func (e *Entry) Size() int64 { return int64(e.inode.size) }

func (e *Entry) IsDir() bool         { return e.inode.entryType() == fileTypeDirectory }
func (e *Entry) IsRegular() bool     { return e.inode.entryType() == fileTypeRegularFile }
func (e *Entry) IsSymlink() bool     { return e.inode.entryType() == fileTypeSymbolicLink }
func (e *Entry) IsBlockDevice() bool { return e.inode.entryType() == fileTypeBlockDevice }
func (e *Entry) IsCharDevice() bool  { return e.inode.entryType() == fileTypeCharacterDevice }
func (e *Entry) IsFifo() bool        { return e.inode.entryType() == fileTypeFifo }
func (e *Entry) IsSocket() bool      { return e.inode.entryType() == fileTypeSocket }

// DataOffset returns the absolute position of the entry's data within the
// image: the first child record for directories, the block pointer table
// for regular files and symlinks, zero for everything else.
func (e *Entry) DataOffset() int64 { return e.inode.dataOffset() }

// DeviceNumbers returns the major and minor device numbers of a device
// node, packed in the inode size field in the old 8:8 encoding.
func (e *Entry) DeviceNumbers() (major, minor uint32) {
	return e.inode.size >> 8, e.inode.size & 0xff
}

// Equal reports whether two entries belong to the same opened filesystem
// and resolve to the same path.
func (e *Entry) Equal(other *Entry) bool {
	return other != nil && e.fs == other.fs && e.Path() == other.Path()
}

// Less orders entries by name only. Entries with equal names are
// unordered relative to each other.
func (e *Entry) Less(other *Entry) bool { return e.name < other.name }

// Children returns the ordered child list of a directory, building it
// from the image on first call.
func (e *Entry) Children() ([]*Entry, error) {
	if !e.IsDir() {
		return nil, fmt.Errorf("cramfs: %s is not a directory", e.Path())
	}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e.children, nil
}

// Child returns the named child of a directory, or nil if there is none.
func (e *Entry) Child(name string) (*Entry, error) {
	if !e.IsDir() {
		return nil, fmt.Errorf("cramfs: %s is not a directory", e.Path())
	}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e.byName[name], nil
}

// build reads the child records of a directory: a walk of the byte region
// [offset*4, offset*4+size), each step one 12 byte inode record followed
// by namelen*4 bytes of NUL-padded name. A zero data offset is an empty
// directory. Children are kept in on-disk record order. When two records
// share a name the first occurrence wins.
func (e *Entry) build() error {
	if e.built {
		return nil
	}
	e.byName = map[string]*Entry{}
	if e.inode.offset == 0 {
		e.built = true
		return nil
	}
	start := e.inode.dataOffset()
	b, err := e.fs.readAt(start, int64(e.inode.size))
	if err != nil {
		return err
	}
	for pos := 0; pos < len(b); {
		if pos+inodeSize > len(b) {
			return &StructuralError{Offset: start + int64(pos), Msg: "truncated directory entry record"}
		}
		var in inode
		if err = in.UnmarshalCramfs(b[pos:]); err != nil {
			return &StructuralError{Offset: start + int64(pos), Msg: err.Error()}
		}
		pos += inodeSize
		nameLen := in.nameLength()
		if nameLen == 0 {
			return &StructuralError{Offset: start + int64(pos), Msg: "zero name length in directory entry"}
		}
		if pos+nameLen > len(b) {
			return &StructuralError{Offset: start + int64(pos), Msg: "directory entry name extends past the directory data"}
		}
		name := strings.TrimRight(string(b[pos:pos+nameLen]), "\x00")
		pos += nameLen
		if _, ok := e.byName[name]; ok {
			continue
		}
		child := &Entry{fs: e.fs, inode: in, name: name, parent: e}
		e.children = append(e.children, child)
		e.byName[name] = child
	}
	e.built = true
	return nil
}

// Total returns the number of entries in the subtree rooted at e,
// including e itself. A non-directory entry counts 1.
func (e *Entry) Total() (int, error) {
	if e.total > 0 {
		return e.total, nil
	}
	total := 1
	if e.IsDir() {
		children, err := e.Children()
		if err != nil {
			return 0, err
		}
		for _, child := range children {
			t, err := child.Total()
			if err != nil {
				return 0, err
			}
			total += t
		}
	}
	e.total = total
	return total, nil
}

// Walk traverses the subtree rooted at e depth-first in pre-order,
// calling fn for every entry, e included. fn may return fs.SkipDir to
// skip the children of a directory or fs.SkipAll to stop the walk early;
// both make Walk return nil.
func (e *Entry) Walk(fn func(*Entry) error) error {
	err := e.walk(fn)
	if errors.Is(err, fs.SkipAll) || errors.Is(err, fs.SkipDir) {
		return nil
	}
	return err
}

func (e *Entry) walk(fn func(*Entry) error) error {
	if err := fn(e); err != nil {
		if errors.Is(err, fs.SkipDir) && e.IsDir() {
			return nil
		}
		return err
	}
	if !e.IsDir() {
		return nil
	}
	children, err := e.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err = child.walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the first entry anywhere under e, in pre-order, whose name
// matches the base name of filename, or nil if there is none.
func (e *Entry) Find(filename string) (*Entry, error) {
	name := path.Base(filename)
	var found *Entry
	err := e.Walk(func(entry *Entry) error {
		if entry.name == name {
			found = entry
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Select resolves a path to an entry. Absolute paths resolve from the
// filesystem root no matter which directory Select is called on; relative
// paths resolve from e. The special segments "." and ".." are supported;
// ".." on the root yields the root itself. Repeated and trailing
// separators are ignored. A miss returns a NotFoundError naming the first
// segment that did not resolve.
func (e *Entry) Select(p string) (*Entry, error) {
	current := e
	if strings.HasPrefix(p, "/") {
		current = e.fs.root
	}
	for _, segment := range strings.Split(p, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			if current.parent != nil {
				current = current.parent
			}
			continue
		}
		if !current.IsDir() {
			return nil, &NotFoundError{Path: p, Segment: segment}
		}
		child, err := current.Child(segment)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, &NotFoundError{Path: p, Segment: segment}
		}
		current = child
	}
	return current, nil
}

// Match returns, in pre-order, every entry under e whose path matches the
// pattern in the path.Match syntax. Paths are matched relative to e,
// except on the root where absolute paths are used, so a pattern like
// "/etc/*" works on the whole filesystem.
func (e *Entry) Match(pattern string) ([]*Entry, error) {
	base := e.Path()
	var matches []*Entry
	var badPattern error
	err := e.Walk(func(entry *Entry) error {
		p := entry.Path()
		if base != "/" {
			if p == base {
				return nil
			}
			p = strings.TrimPrefix(p, base+"/")
		}
		ok, err := path.Match(pattern, p)
		if err != nil {
			badPattern = err
			return fs.SkipAll
		}
		if ok {
			matches = append(matches, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if badPattern != nil {
		return nil, badPattern
	}
	return matches, nil
}
