package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// File is the backend for a filesystem image: a read-only, randomly
// addressable byte source. *os.File and *bytes.Reader both implement it.
type File interface {
	io.ReaderAt
}

// FileFromBytes returns a File backed by an in-memory buffer.
func FileFromBytes(b []byte) File {
	return bytes.NewReader(b)
}

// FileSize returns the total size in bytes of a File. For block devices it
// queries the kernel, since os.Stat reports a zero size for device nodes.
func FileSize(f File) (int64, error) {
	switch v := f.(type) {
	case *os.File:
		fi, err := v.Stat()
		if err != nil {
			return 0, fmt.Errorf("could not stat file: %v", err)
		}
		if fi.Mode()&os.ModeDevice == os.ModeDevice {
			return blockDeviceSize(v)
		}
		return fi.Size(), nil
	case interface{ Size() int64 }:
		return v.Size(), nil
	case io.Seeker:
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		size, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err = v.Seek(pos, io.SeekStart); err != nil {
			return 0, err
		}
		return size, nil
	}
	return 0, fmt.Errorf("cannot determine size of %T", f)
}
