package npm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/git-pkgs/updatecheck/client"
	"github.com/git-pkgs/updatecheck/internal/core"
	"github.com/git-pkgs/updatecheck/internal/npmrc"
)

func newRegistry(serverURL string, values map[string]string) *Registry {
	return New(client.NewClient(), npmrc.FromMap(values, func(string) string { return "" }), WithBaseURL(serverURL))
}

// authKey returns the npmrc key for an _authToken on the test server.
func authKey(serverURL string) string {
	return strings.TrimPrefix(serverURL, "http:") + "/:_authToken"
}

func TestQueryLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lodash" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Accept"); got != AcceptHeader {
			t.Errorf("Accept = %q", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("first request should not carry credentials")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"lodash","dist-tags":{"latest":"4.17.21","next":"5.0.0-beta.1"}}`))
	}))
	defer server.Close()

	reg := newRegistry(server.URL, nil)

	got, err := reg.QueryLatest(context.Background(), "lodash", "latest")
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}
	if got != "4.17.21" {
		t.Errorf("latest = %q, want %q", got, "4.17.21")
	}

	got, err = reg.QueryLatest(context.Background(), "lodash", "next")
	if err != nil {
		t.Fatalf("QueryLatest(next) failed: %v", err)
	}
	if got != "5.0.0-beta.1" {
		t.Errorf("next = %q", got)
	}
}

func TestQueryLatestScoped(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"dist-tags":{"latest":"7.24.0"}}`))
	}))
	defer server.Close()

	reg := New(client.NewClient(), npmrc.FromMap(map[string]string{
		"@babel:registry": server.URL,
	}, nil))

	got, err := reg.QueryLatest(context.Background(), "@babel/core", "latest")
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}
	if got != "7.24.0" {
		t.Errorf("latest = %q", got)
	}
	if gotPath != "/@babel%2Fcore" {
		t.Errorf("path = %q, want %q", gotPath, "/@babel%2Fcore")
	}
}

func TestQueryLatestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   core.Kind
	}{
		{"not found", http.StatusNotFound, `{"error":"Not found"}`, core.KindPackageNotFound},
		{"server error", http.StatusInternalServerError, `oops`, core.KindRegistryServer},
		{"bad gateway", http.StatusBadGateway, ``, core.KindRegistryServer},
		{"invalid json", http.StatusOK, `{{`, core.KindMalformedResponse},
		{"array body", http.StatusOK, `["1.0.0"]`, core.KindMalformedResponse},
		{"string body", http.StatusOK, `"1.0.0"`, core.KindMalformedResponse},
		{"missing tag", http.StatusOK, `{"dist-tags":{}}`, core.KindUnknownDistTag},
		{"no dist-tags", http.StatusOK, `{"name":"pkg"}`, core.KindUnknownDistTag},
		{"non-string tag", http.StatusOK, `{"dist-tags":{"latest":1}}`, core.KindUnknownDistTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newRegistry(server.URL, nil).QueryLatest(context.Background(), "pkg", "latest")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := core.KindOf(err); got != tt.kind {
				t.Errorf("KindOf = %q, want %q (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestQueryLatestDistTagMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"dist-tags":{"latest":"1.0.0"}}`))
	}))
	defer server.Close()

	_, err := newRegistry(server.URL, nil).QueryLatest(context.Background(), "pkg", "canary")
	var tagErr *core.DistTagError
	if !errors.As(err, &tagErr) {
		t.Fatalf("expected DistTagError, got %v", err)
	}
	if err.Error() != `Distribution tag "canary" does not exist` {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestQueryLatestRetriesWithAuthorization(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Accept") != AcceptHeader {
			t.Error("retry dropped the Accept header")
		}
		_, _ = w.Write([]byte(`{"dist-tags":{"latest":"2.0.0"}}`))
	}))
	defer server.Close()

	reg := newRegistry(server.URL, map[string]string{authKey(server.URL): "s3cret"})

	got, err := reg.QueryLatest(context.Background(), "private", "latest")
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}
	if got != "2.0.0" {
		t.Errorf("latest = %q", got)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestQueryLatestRetriesOnlyOnce(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	reg := newRegistry(server.URL, map[string]string{authKey(server.URL): "wrong"})

	got, err := reg.QueryLatest(context.Background(), "private", "latest")
	if err != nil {
		t.Fatalf("expected no error after rejected credentials, got %v", err)
	}
	if got != "" {
		t.Errorf("latest = %q, want empty", got)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestQueryLatestNoCredentials(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	got, err := newRegistry(server.URL, nil).QueryLatest(context.Background(), "private", "latest")
	if err != nil {
		t.Fatalf("expected no error without credentials, got %v", err)
	}
	if got != "" {
		t.Errorf("latest = %q, want empty", got)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestQueryLatestNotFoundIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	reg := newRegistry(server.URL, map[string]string{authKey(server.URL): "s3cret"})

	_, err := reg.QueryLatest(context.Background(), "missing", "latest")
	if !errors.Is(err, core.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

// responseDoer returns the same response for every request.
type responseDoer struct {
	resp *client.Response
}

func (d responseDoer) Do(context.Context, *client.Request) (*client.Response, error) {
	return d.resp, nil
}

func TestQueryLatestEmptySuccessBody(t *testing.T) {
	for _, body := range [][]byte{nil, {}} {
		reg := New(responseDoer{&client.Response{StatusCode: http.StatusOK, Body: body}}, npmrc.FromMap(nil, nil), WithBaseURL("https://registry.example.com"))

		got, err := reg.QueryLatest(context.Background(), "lodash", "latest")
		if !errors.Is(err, core.ErrMalformedResponse) {
			t.Errorf("body %q: err = %v, want ErrMalformedResponse", body, err)
		}
		if got != "" {
			t.Errorf("body %q: latest = %q", body, got)
		}
	}
}

func TestQueryLatestUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newRegistry(url, nil).QueryLatest(context.Background(), "pkg", "latest")
	if core.KindOf(err) != core.KindRegistryUnreachable {
		t.Fatalf("KindOf = %q, want unreachable (%v)", core.KindOf(err), err)
	}
	if !core.Recoverable(err) {
		t.Error("unreachable registry should be recoverable")
	}
}

func TestQueryLatestInvalidRegistry(t *testing.T) {
	_, err := newRegistry("not a url", nil).QueryLatest(context.Background(), "pkg", "latest")
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegistryURL(t *testing.T) {
	cfg := npmrc.FromMap(map[string]string{
		"registry":       "https://npm.example.com/",
		"@acme:registry": "https://acme.example.com/",
	}, nil)

	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"lodash", nil, "https://npm.example.com/"},
		{"@acme/widget", nil, "https://acme.example.com/"},
		{"@acme/widget", []Option{WithBaseURL("https://override.example.com/")}, "https://override.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(nil, cfg, tt.opts...)
			if got := reg.RegistryURL(tt.name); got != tt.want {
				t.Errorf("RegistryURL(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestScope(t *testing.T) {
	tests := []struct {
		name  string
		scope string
	}{
		{"lodash", ""},
		{"@babel/core", "@babel"},
		{"@types/node", "@types"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Scope(tt.name); got != tt.scope {
				t.Errorf("Scope(%q) = %q, want %q", tt.name, got, tt.scope)
			}
		})
	}
}
