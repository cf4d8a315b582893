package core

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseVersion accepts a strict semantic version with an optional leading
// "v" or "=", as npm does.
func parseVersion(s string) (*semver.Version, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	s = strings.TrimPrefix(s, "v")
	return semver.StrictNewVersion(s)
}

// GreaterThan reports whether version a orders after version b.
// Unparseable versions never compare greater.
func GreaterThan(a, b string) bool {
	va, err := parseVersion(a)
	if err != nil {
		return false
	}
	vb, err := parseVersion(b)
	if err != nil {
		return false
	}
	return va.GreaterThan(vb)
}

// ValidVersion reports whether s is a semantic version npm would accept.
func ValidVersion(s string) bool {
	_, err := parseVersion(s)
	return err == nil
}
