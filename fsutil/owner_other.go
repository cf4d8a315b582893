//go:build !unix

package fsutil

type systemOwnership struct{}

// SystemOwnership returns a capability that never propagates ownership;
// the platform has no POSIX owners.
func SystemOwnership() Ownership {
	return systemOwnership{}
}

func (systemOwnership) Privileged() bool { return false }

func (systemOwnership) Owner(string) (int, int, bool) { return 0, 0, false }

func (systemOwnership) Lchown(string, int, int) error { return nil }
