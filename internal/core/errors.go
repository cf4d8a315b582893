package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into the stable taxonomy callers switch on.
type Kind string

const (
	KindUnknown             Kind = "unknown"
	KindInvalidInput        Kind = "invalid_input"
	KindPackageDescriptor   Kind = "package_descriptor"
	KindRegistryUnreachable Kind = "registry_unreachable"
	KindRegistryServer      Kind = "registry_server"
	KindMalformedResponse   Kind = "malformed_response"
	KindUnknownDistTag      Kind = "unknown_dist_tag"
	KindPackageNotFound     Kind = "package_not_found"
)

// Sentinels for errors.Is. Every typed error below unwraps to one of these.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrPackageDescriptor   = errors.New("package descriptor error")
	ErrRegistryUnreachable = errors.New("registry unreachable")
	ErrRegistryServer      = errors.New("registry server error")
	ErrMalformedResponse   = errors.New("malformed registry response")
	ErrUnknownDistTag      = errors.New("unknown dist-tag")
	ErrPackageNotFound     = errors.New("package not found")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrPackageDescriptor, KindPackageDescriptor},
	{ErrRegistryUnreachable, KindRegistryUnreachable},
	{ErrRegistryServer, KindRegistryServer},
	{ErrMalformedResponse, KindMalformedResponse},
	{ErrUnknownDistTag, KindUnknownDistTag},
	{ErrPackageNotFound, KindPackageNotFound},
}

// KindOf walks the error chain and returns the first taxonomy kind found.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Recoverable reports whether err resolves to "no known latest version"
// instead of failing the check.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindRegistryUnreachable, KindPackageNotFound:
		return true
	}
	return false
}

// InvalidInput builds an ErrInvalidInput with a message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// HTTPError represents a non-success registry response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *HTTPError) Unwrap() error {
	if e.IsNotFound() {
		return ErrPackageNotFound
	}
	return ErrRegistryServer
}

// NotFoundError is returned when the registry has no such package, or it
// could not be read even with credentials.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("npm: package %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrPackageNotFound
}

// DistTagError is returned when a successful response lacks the requested tag.
type DistTagError struct {
	Name    string
	DistTag string
}

func (e *DistTagError) Error() string {
	return fmt.Sprintf("Distribution tag %q does not exist", e.DistTag)
}

func (e *DistTagError) Unwrap() error {
	return ErrUnknownDistTag
}

// UnreachableError wraps a transport failure that left no network path to
// the registry.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("Failed to connect to npm registry %s: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() []error {
	return []error{ErrRegistryUnreachable, e.Err}
}

// MalformedResponseError is returned when a success body is not a JSON object.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Expected registry package info to be an object: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("Expected registry package info to be an object: %s", e.URL)
}

func (e *MalformedResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Err}
}

// DescriptorError describes a missing, unreadable or malformed package descriptor.
type DescriptorError struct {
	Path    string
	Message string
	Err     error
}

func (e *DescriptorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DescriptorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPackageDescriptor}
	}
	return []error{ErrPackageDescriptor, e.Err}
}
