//go:build !linux

package util

import (
	"fmt"
	"os"
)

func blockDeviceSize(f *os.File) (int64, error) {
	return 0, fmt.Errorf("block device sizing not supported on this platform")
}
