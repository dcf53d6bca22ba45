//go:build windows

package u2idx

import "os"

// statIno substitutes 0 for the inode on Windows, matching the
// original's "0 if ANYWIN else inf.st_ino".
func statIno(path string) (uint64, bool) {
	if _, err := os.Stat(path); err != nil {
		return 0, false
	}
	return 0, true
}
