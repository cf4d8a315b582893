// Package updatecheck reports whether a newer version of an npm package is
// published under a dist-tag.
//
// Results are cached per package and dist-tag as a small JSON record, so
// repeated checks within the check interval never touch the network.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/updatecheck"
//	)
//
//	res, err := updatecheck.Check(context.Background(), updatecheck.Request{
//		Package: &updatecheck.Package{Name: "my-cli", Version: "1.2.3"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if res.UpdateAvailable {
//		fmt.Printf("%s %s is available\n", res.Name, *res.Latest)
//	}
//
// A Checker reuses its HTTP client and configuration across calls:
//
//	checker := updatecheck.New(
//		updatecheck.WithCheckInterval(24*time.Hour),
//		updatecheck.WithLogger(logrus.StandardLogger()),
//	)
//	res, err := checker.Check(ctx, updatecheck.Request{Cwd: "/path/to/project"})
package updatecheck

import (
	"github.com/git-pkgs/updatecheck/client"
	"github.com/git-pkgs/updatecheck/internal/core"
	"github.com/git-pkgs/updatecheck/internal/npmrc"
)

// Re-export types from internal/core
type (
	// Package identifies the package being checked.
	Package = core.Package

	// Result is the outcome of a check. It has the same shape as the
	// cached record.
	Result = core.Record

	// Kind classifies a check failure.
	Kind = core.Kind
)

// Re-export types from client
type (
	// Doer executes registry requests.
	Doer = client.Doer

	// Client is the default HTTP implementation of Doer.
	Client = client.Client

	// ClientOption configures a Client.
	ClientOption = client.Option
)

// NpmConfig resolves registries and credentials from .npmrc files.
type NpmConfig = npmrc.Config

// Re-export constants
const (
	DefaultDistTag     = core.DefaultDistTag
	DefaultRegistryURL = client.DefaultRegistryURL

	KindInvalidInput        = core.KindInvalidInput
	KindPackageDescriptor   = core.KindPackageDescriptor
	KindRegistryUnreachable = core.KindRegistryUnreachable
	KindRegistryServer      = core.KindRegistryServer
	KindMalformedResponse   = core.KindMalformedResponse
	KindUnknownDistTag      = core.KindUnknownDistTag
	KindPackageNotFound     = core.KindPackageNotFound
)

// Re-export errors
var (
	ErrInvalidInput        = core.ErrInvalidInput
	ErrPackageDescriptor   = core.ErrPackageDescriptor
	ErrRegistryUnreachable = core.ErrRegistryUnreachable
	ErrRegistryServer      = core.ErrRegistryServer
	ErrMalformedResponse   = core.ErrMalformedResponse
	ErrUnknownDistTag      = core.ErrUnknownDistTag
	ErrPackageNotFound     = core.ErrPackageNotFound
	ErrCircuitOpen         = client.ErrCircuitOpen
)

// Error types
type (
	HTTPError              = core.HTTPError
	NotFoundError          = core.NotFoundError
	DistTagError           = core.DistTagError
	UnreachableError       = core.UnreachableError
	MalformedResponseError = core.MalformedResponseError
	DescriptorError        = core.DescriptorError
)

// KindOf returns the failure kind of err.
func KindOf(err error) Kind {
	return core.KindOf(err)
}

// NewClient creates an HTTP client with the given options.
func NewClient(opts ...ClientOption) *Client {
	return client.NewClient(opts...)
}

// LoadNpmConfig reads the global, user and project .npmrc files for cwd.
func LoadNpmConfig(cwd string) (*NpmConfig, error) {
	return npmrc.Load(npmrc.Options{Cwd: cwd})
}
