package cramfs

import "fmt"

// StructuralError reports an image whose fixed structures are malformed:
// a bad magic, a bad signature, unsupported feature flags, or a truncated
// or inconsistent header. It aborts opening the image.
type StructuralError struct {
	Offset int64
	Msg    string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("cramfs: structural error at offset %d: %s", e.Offset, e.Msg)
}

// BoundsError reports an offset or length decoded from untrusted on-disk
// data that points outside the image.
type BoundsError struct {
	Offset int64
	Length int64
	Size   int64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("cramfs: read of %d bytes at offset %d is outside the %d byte image", e.Length, e.Offset, e.Size)
}

// IntegrityError reports corrupt data found by an explicit check: a block
// that fails to decompress, a block of the wrong inflated size, or a
// whole-image CRC mismatch. Block is the offending block index, or -1 when
// the whole image fails its CRC check.
type IntegrityError struct {
	Block int
	Msg   string
	Err   error
}

func (e *IntegrityError) Error() string {
	s := "cramfs: " + e.Msg
	if e.Block >= 0 {
		s = fmt.Sprintf("cramfs: block %d: %s", e.Block, e.Msg)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NotFoundError reports a failed path resolution. Segment is the first
// path segment that did not resolve.
type NotFoundError struct {
	Path    string
	Segment string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cramfs: %q: no such entry %q", e.Path, e.Segment)
}
