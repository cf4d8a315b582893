// Package npm queries an npm registry for the version a dist-tag points to.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/git-pkgs/updatecheck/client"
	"github.com/git-pkgs/updatecheck/internal/core"
	"github.com/git-pkgs/updatecheck/internal/npmrc"
)

const (
	DefaultURL = client.DefaultRegistryURL

	// AcceptHeader prefers the abbreviated metadata document.
	AcceptHeader = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"
)

// Config resolves registries and credentials. *npmrc.Config satisfies it.
type Config interface {
	RegistryURL(scope string) string
	Credentials(registryURL string) (*npmrc.Credential, bool)
}

// authState bounds the authorization retry to a single attempt.
type authState int

const (
	noAuthTried authState = iota
	authTried
)

// Registry is an npm registry client.
type Registry struct {
	doer    client.Doer
	config  Config
	baseURL string
	log     logrus.FieldLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBaseURL overrides the registry resolved from npm configuration.
func WithBaseURL(u string) Option {
	return func(r *Registry) {
		r.baseURL = u
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Registry. A nil doer uses client.DefaultClient and a nil
// config resolves everything to the public registry without credentials.
func New(doer client.Doer, cfg Config, opts ...Option) *Registry {
	if doer == nil {
		doer = client.DefaultClient()
	}
	if cfg == nil {
		cfg = npmrc.FromMap(nil, nil)
	}
	r := &Registry{
		doer:   doer,
		config: cfg,
		log:    discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Scope returns the "@scope" part of a scoped package name, or "".
func Scope(name string) string {
	if i := strings.Index(name, "/"); i != -1 {
		return name[:i]
	}
	return ""
}

// RegistryURL returns the registry base used for name.
func (r *Registry) RegistryURL(name string) string {
	if r.baseURL != "" {
		return r.baseURL
	}
	return r.config.RegistryURL(Scope(name))
}

// QueryLatest returns the version distTag points to. It returns "" with a
// nil error when the package is inaccessible even with credentials.
func (r *Registry) QueryLatest(ctx context.Context, name, distTag string) (string, error) {
	base := r.RegistryURL(name)
	target, err := client.PackageURL(base, name)
	if err != nil {
		return "", core.InvalidInput("%v", err)
	}

	header := http.Header{}
	header.Set("Accept", AcceptHeader)

	body, found, err := r.fetch(ctx, name, base, target, header, noAuthTried)
	if err != nil || !found {
		return "", err
	}

	info, err := decodeObject(target, body)
	if err != nil {
		return "", err
	}

	version := distTagVersion(info, distTag)
	if version == "" {
		return "", &core.DistTagError{Name: name, DistTag: distTag}
	}
	return version, nil
}

// fetch returns the body of a 2xx response. found is false, with a nil
// error, when the registry denied access even after the authorization retry.
func (r *Registry) fetch(ctx context.Context, name, base, target string, header http.Header, state authState) (body []byte, found bool, err error) {
	log := r.log.WithFields(logrus.Fields{"package": name, "url": target})
	log.Debug("querying registry")

	resp, err := r.doer.Do(ctx, &client.Request{URL: target, Header: header})
	if err != nil {
		if client.IsUnreachable(err) {
			return nil, false, &core.UnreachableError{URL: target, Err: err}
		}
		log.WithError(err).Error("Failed to query registry")
		return nil, false, fmt.Errorf("%w: %w", core.ErrRegistryServer, err)
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return resp.Body, true, nil

	case code == http.StatusNotFound:
		return nil, false, &core.NotFoundError{Name: name}

	case code >= 400 && code < 500:
		if state == authTried {
			log.WithField("status", code).Warn("request with authorization header failed")
			return nil, false, nil
		}
		cred, ok := r.config.Credentials(base)
		if !ok {
			log.WithField("status", code).Warn("request failed and no credentials are configured")
			return nil, false, nil
		}
		log.WithField("status", code).Warn("Request failed, retrying with authorization header...")
		retry := header.Clone()
		retry.Set("Authorization", cred.Header())
		return r.fetch(ctx, name, base, target, retry, authTried)

	default:
		log.WithField("status", code).Error("Failed to query registry")
		return nil, false, &core.HTTPError{StatusCode: code, URL: target, Body: snippet(resp.Body)}
	}
}

func decodeObject(target string, body []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &core.MalformedResponseError{URL: target, Err: err}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &core.MalformedResponseError{URL: target}
	}
	return obj, nil
}

func distTagVersion(info map[string]any, distTag string) string {
	tags, ok := info["dist-tags"].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := tags[distTag].(string)
	return v
}

func snippet(body []byte) string {
	if len(body) > 1024 {
		body = body[:1024]
	}
	return string(body)
}
