package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// ErrCircuitOpen is returned while a registry host's breaker is tripped.
var ErrCircuitOpen = errors.New("circuit breaker open")

var errServerStatus = errors.New("server error status")

// BreakerClient wraps a Doer with per-host circuit breakers. Transport
// failures and 5xx responses count as failures; 4xx responses do not.
type BreakerClient struct {
	doer      Doer
	threshold int64
	breakers  map[string]*circuit.Breaker
	mu        sync.RWMutex
}

// NewBreakerClient creates a breaker wrapper that trips after threshold
// consecutive failures. A threshold <= 0 uses 5.
func NewBreakerClient(d Doer, threshold int64) *BreakerClient {
	if threshold <= 0 {
		threshold = 5
	}
	return &BreakerClient{
		doer:      d,
		threshold: threshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates a circuit breaker for the given host.
func (b *BreakerClient) getBreaker(host string) *circuit.Breaker {
	b.mu.RLock()
	breaker, exists := b.breakers[host]
	b.mu.RUnlock()

	if exists {
		return breaker
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if breaker, exists := b.breakers[host]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(b.threshold),
	})
	b.breakers[host] = breaker
	return breaker
}

// Do forwards the request unless the host's breaker is open.
func (b *BreakerClient) Do(ctx context.Context, req *Request) (*Response, error) {
	host := extractHost(req.URL)
	breaker := b.getBreaker(host)

	if !breaker.Ready() {
		return nil, fmt.Errorf("registry %s: %w", host, ErrCircuitOpen)
	}

	var resp *Response
	err := breaker.Call(func() error {
		var doErr error
		resp, doErr = b.doer.Do(ctx, req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return errServerStatus
		}
		return nil
	}, 0)

	switch {
	case errors.Is(err, errServerStatus):
		return resp, nil
	case errors.Is(err, circuit.ErrBreakerOpen):
		return nil, fmt.Errorf("registry %s: %w", host, ErrCircuitOpen)
	case err != nil:
		return nil, err
	}
	return resp, nil
}

// States returns "open" or "closed" per host.
func (b *BreakerClient) States() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]string, len(b.breakers))
	for host, breaker := range b.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
