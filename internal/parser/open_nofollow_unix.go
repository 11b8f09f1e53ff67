//go:build !windows

package parser

import (
	"os"
	"syscall"
)

// openNoFollow opens a session or feed file for reading without
// following a symlink at the final path component. O_NOFOLLOW makes
// the open fail with ELOOP when a symlink was swapped in under a
// dialect root between discovery and read.
func openNoFollow(path string) (*os.File, error) {
	return os.OpenFile(
		path, os.O_RDONLY|syscall.O_NOFOLLOW, 0,
	)
}
