//go:build !windows

package u2idx

import (
	"os"
	"syscall"
)

// statIno returns the inode number for the fk hash input, matching
// the original's "inf.st_ino" on POSIX.
func statIno(path string) (uint64, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Ino), true
}
