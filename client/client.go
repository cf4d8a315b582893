// Package client provides the HTTP capability used to query package
// registries: a request/response shape, a default implementation with DNS
// caching, and a per-host circuit breaker wrapper.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/dnscache"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "updatecheck"

	maxBodySize = 64 << 20
)

// Request is a registry GET request.
type Request struct {
	URL    string
	Header http.Header
}

// Response is a completed registry response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer executes registry requests. Implementations return a Response for any
// HTTP status and an error only when no response was received.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client is the default Doer backed by net/http.
type Client struct {
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http.Timeout = d
	}
}

// WithProxy routes requests through the given proxy URL.
func WithProxy(proxy *url.URL) Option {
	return func(cl *Client) {
		if t, ok := cl.http.Transport.(*http.Transport); ok {
			t.Proxy = http.ProxyURL(proxy)
		}
	}
}

// WithTLSConfig sets the TLS configuration, e.g. for a private CA.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(cl *Client) {
		if t, ok := cl.http.Transport.(*http.Transport); ok {
			t.TLSClientConfig = cfg
		}
	}
}

var (
	resolverOnce sync.Once
	resolver     *dnscache.Resolver
)

// sharedResolver returns a process-wide DNS cache refreshed every 5 minutes.
func sharedResolver() *dnscache.Resolver {
	resolverOnce.Do(func() {
		resolver = &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				resolver.Refresh(true)
			}
		}()
	})
	return resolver
}

func newTransport() *http.Transport {
	r := sharedResolver()
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := r.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = fmt.Errorf("no addresses for %s", host)
			}
			return nil, lastErr
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: newTransport(),
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultClient returns a client with a 10s timeout and DNS caching.
func DefaultClient() *Client {
	return NewClient()
}

// Timeout returns the overall request timeout. Zero means none.
func (c *Client) Timeout() time.Duration {
	return c.http.Timeout
}

// Do performs a GET request. Non-2xx statuses are returned as a Response,
// not an error.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", r.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
