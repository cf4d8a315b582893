//go:build unix

package fsutil

import (
	"os"
	"syscall"
)

type systemOwnership struct{}

// SystemOwnership returns the capability backed by the running process:
// privileged when the effective uid is 0.
func SystemOwnership() Ownership {
	return systemOwnership{}
}

func (systemOwnership) Privileged() bool {
	return os.Geteuid() == 0
}

func (systemOwnership) Owner(path string) (int, int, bool) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, 0, false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(st.Uid), int(st.Gid), true
}

func (systemOwnership) Lchown(path string, uid, gid int) error {
	return os.Lchown(path, uid, gid)
}
