//go:build !linux

package disk

import "errors"

func Size(path string) (int64, error) {
	return 0, errors.ErrUnsupported
}

func IsBlockDevice(path string) bool {
	return false
}
