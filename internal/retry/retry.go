package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

// Policy retries transient failures with exponential backoff and jitter.
// A zero maxRetries disables retrying entirely.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewPolicy creates a retry policy.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func NewPolicy(maxRetries int, baseDelay time.Duration, logger *slog.Logger) Policy {
	return Policy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Do calls fn, retrying while retryable reports the error as transient.
func Do[T any](ctx context.Context, p Policy, op string, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	out, err := fn(ctx)
	if err == nil || !retryable(err) {
		return out, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		p.logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_retries", p.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		out, err = fn(ctx)
		if err == nil || !retryable(err) {
			return out, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// RetryFetcher is a decorator that retries transient status-fetch failures
// before the poller sees them. Only the error from the final try reaches the
// poller, which still treats it as fatal.
type RetryFetcher struct {
	inner  model.StatusFetcher
	policy Policy
}

// NewRetryFetcher wraps a StatusFetcher with retry logic.
func NewRetryFetcher(inner model.StatusFetcher, policy Policy) *RetryFetcher {
	return &RetryFetcher{inner: inner, policy: policy}
}

// FetchStatus fetches the job status, retrying on transient errors.
func (f *RetryFetcher) FetchStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	return Do(ctx, f.policy, "fetch_status", isRetryable, func(ctx context.Context) (model.JobStatus, error) {
		return f.inner.FetchStatus(ctx, jobID)
	})
}

// RetryEnqueuer retries session enqueues, but only on responses that prove
// the backend did not accept the job (429 and 503). Network errors are not
// retried since the POST may already have been processed.
type RetryEnqueuer struct {
	inner  model.SessionEnqueuer
	policy Policy
}

// NewRetryEnqueuer wraps a SessionEnqueuer with retry logic.
func NewRetryEnqueuer(inner model.SessionEnqueuer, policy Policy) *RetryEnqueuer {
	return &RetryEnqueuer{inner: inner, policy: policy}
}

// EnqueueSession enqueues the session, retrying on rejection.
func (e *RetryEnqueuer) EnqueueSession(ctx context.Context, req model.SessionRequest) (string, error) {
	return Do(ctx, e.policy, "enqueue_session", isRejected, func(ctx context.Context) (string, error) {
		return e.inner.EnqueueSession(ctx, req)
	})
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation: never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		// 5xx is retryable; other 4xx are not.
		return httpErr.StatusCode >= 500
	}

	// Non-HTTP errors (network, DNS, etc.) are retryable.
	return true
}

// isRejected reports a response where the backend refused the request outright.
func isRejected(err error) bool {
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode == http.StatusServiceUnavailable
}
