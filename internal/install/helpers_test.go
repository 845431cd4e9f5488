package install_test

import "os"

func writeSparse(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
