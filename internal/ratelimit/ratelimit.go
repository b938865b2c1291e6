package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

// HostRateLimiter enforces a minimum delay between requests to the same API host.
type HostRateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: API host
	minDelay time.Duration
}

// NewHostRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same host. A zero minDelay never blocks.
func NewHostRateLimiter(minDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to host.
// Returns an error if the context is cancelled while waiting.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	if r.minDelay <= 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	now := time.Now()
	last, ok := r.lastCall[host]
	if !ok || now.Sub(last) >= r.minDelay {
		r.lastCall[host] = now
		r.mu.Unlock()
		return nil
	}

	// Reserve the next slot before releasing the lock so concurrent waiters
	// queue up behind each other instead of all firing at once.
	next := last.Add(r.minDelay)
	r.lastCall[host] = next
	r.mu.Unlock()

	t := time.NewTimer(next.Sub(now))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-t.C:
		return nil
	}
}

// RateLimitedFetcher is a decorator that enforces host-level rate limiting
// before delegating to the wrapped StatusFetcher.
type RateLimitedFetcher struct {
	inner   model.StatusFetcher
	limiter *HostRateLimiter
	host    string
}

// NewRateLimitedFetcher wraps a StatusFetcher with host-level rate limiting.
// All fetchers targeting the same host should share the same limiter instance.
func NewRateLimitedFetcher(inner model.StatusFetcher, limiter *HostRateLimiter, host string) *RateLimitedFetcher {
	return &RateLimitedFetcher{
		inner:   inner,
		limiter: limiter,
		host:    host,
	}
}

// FetchStatus waits for the rate limiter to allow a request, then delegates
// to the wrapped fetcher.
func (f *RateLimitedFetcher) FetchStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	if err := f.limiter.Wait(ctx, f.host); err != nil {
		return model.JobStatus{}, err
	}
	return f.inner.FetchStatus(ctx, jobID)
}
