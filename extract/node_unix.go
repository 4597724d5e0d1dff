//go:build unix

package extract

import (
	"github.com/diskfs/go-cramfs/filesystem/cramfs"
	"golang.org/x/sys/unix"
)

// mknod creates a device node, FIFO or socket. Creating device nodes
// requires privileges; the resulting EPERM is surfaced to the caller.
func mknod(dest string, entry *cramfs.Entry, major, minor uint32) error {
	mode := uint32(entry.Mode().Perm())
	switch {
	case entry.IsCharDevice():
		mode |= unix.S_IFCHR
	case entry.IsBlockDevice():
		mode |= unix.S_IFBLK
	case entry.IsFifo():
		return unix.Mkfifo(dest, mode)
	case entry.IsSocket():
		mode |= unix.S_IFSOCK
	}
	return unix.Mknod(dest, mode, int(unix.Mkdev(major, minor)))
}
