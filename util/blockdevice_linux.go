package util

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blockDeviceSize gets the size of an opened block device in Bytes.
func blockDeviceSize(f *os.File) (int64, error) {
	var size uint64
	if _, _, err := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))); err != 0 {
		return 0, os.NewSyscallError("ioctl: BLKGETSIZE64", err)
	}
	return int64(size), nil
}
