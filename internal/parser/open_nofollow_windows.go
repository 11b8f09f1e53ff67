//go:build windows

package parser

import "os"

// openNoFollow opens a session or feed file for reading. Windows has
// no O_NOFOLLOW, so this is a plain open; the containment checks run
// during dialect-root discovery carry the symlink screening here.
func openNoFollow(path string) (*os.File, error) {
	return os.Open(path)
}
