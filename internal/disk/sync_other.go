//go:build !linux

package disk

import "os"

func fdatasync(file *os.File) error {
	return file.Sync()
}
