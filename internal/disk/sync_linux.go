//go:build linux

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes file data without forcing a metadata-only journal write.
func fdatasync(file *os.File) error {
	return unix.Fdatasync(int(file.Fd()))
}
