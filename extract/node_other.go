//go:build !unix

package extract

import (
	"os"

	"github.com/diskfs/go-cramfs/filesystem/cramfs"
)

// mknod cannot create special files on this platform; an empty
// placeholder file is written instead, as for unprivileged symlinks.
func mknod(dest string, entry *cramfs.Entry, major, minor uint32) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
