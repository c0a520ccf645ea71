//go:build !linux

package tracking

import "io/fs"

// isRemovedEntry has no portable signal outside Linux overlayfs; callers
// on other platforms should supply IsRemovedEntryFunc themselves.
func isRemovedEntry(info fs.FileInfo) bool {
	return false
}
