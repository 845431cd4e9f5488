//go:build linux

package disk

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Size returns the size of a block device or disk image in bytes.
func Size(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, err
	} else if stat.Mode().IsRegular() {
		return stat.Size(), nil
	}

	var value uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&value)))
	if errno != 0 {
		return 0, errno
	}
	return int64(value), nil
}

// IsBlockDevice reports whether path is a block device.
func IsBlockDevice(path string) bool {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return false
	}
	return stat.Mode&unix.S_IFMT == unix.S_IFBLK
}
