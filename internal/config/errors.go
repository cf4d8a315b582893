package config

import (
	"fmt"

	"github.com/git-pkgs/updatecheck/internal/core"
)

// FieldError names the offending setting and why it was rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap classifies every rejected setting as invalid input.
func (e FieldError) Unwrap() error {
	return core.ErrInvalidInput
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}
