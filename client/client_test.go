package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDo(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewClient(WithUserAgent("test-agent/1.0"))
	resp, err := c.Do(context.Background(), &Request{
		URL:    server.URL,
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", string(resp.Body))
	}
	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "test-agent/1.0")
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want %q", gotAccept, "application/json")
	}
}

func TestClientDoReturnsErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	resp, err := DefaultClient().Do(context.Background(), &Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", resp.StatusCode)
	}
}

func TestClientDoUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := DefaultClient().Do(context.Background(), &Request{URL: url})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnreachable(err) {
		t.Errorf("IsUnreachable(%v) = false, want true", err)
	}
}

func TestClientDoTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(WithTimeout(20 * time.Millisecond))
	_, err := c.Do(context.Background(), &Request{URL: server.URL})
	if !IsUnreachable(err) {
		t.Errorf("IsUnreachable(%v) = false, want true", err)
	}
}

func TestIsUnreachableOtherErrors(t *testing.T) {
	if IsUnreachable(nil) {
		t.Error("nil should not be unreachable")
	}
	if IsUnreachable(errors.New("boom")) {
		t.Error("plain error should not be unreachable")
	}
}

func TestBreakerTripsOnServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b := NewBreakerClient(DefaultClient(), 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := b.Do(ctx, &Request{URL: server.URL})
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("attempt %d: StatusCode = %d, want 500", i, resp.StatusCode)
		}
	}

	_, err := b.Do(ctx, &Request{URL: server.URL})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if !IsUnreachable(err) {
		t.Error("open breaker should classify as unreachable")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}

	states := b.States()
	if len(states) != 1 {
		t.Fatalf("expected 1 breaker, got %d", len(states))
	}
	for host, state := range states {
		if state != "open" {
			t.Errorf("breaker %s = %q, want open", host, state)
		}
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	b := NewBreakerClient(DefaultClient(), 1)
	for i := 0; i < 3; i++ {
		resp, err := b.Do(context.Background(), &Request{URL: server.URL})
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
		}
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://registry.npmjs.org/react", "registry.npmjs.org"},
		{"http://localhost:4873/@scope%2Fpkg", "localhost:4873"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := extractHost(tt.url); got != tt.want {
			t.Errorf("extractHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
