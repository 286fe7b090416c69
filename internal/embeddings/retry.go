package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Retry policy bounds.
const (
	maxRetryJitter = 500 * time.Millisecond
	maxRetryDelay  = 30 * time.Second
)

// HTTPError carries the status code of a failed HTTP call so the retry
// policy can distinguish transient statuses from permanent ones.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether an error should be retried.
//
// Retryable: HTTP 429/408/5xx, network and socket errors, timeouts.
// Not retryable: cancellation and everything else.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429, httpErr.StatusCode == 408:
			return true
		case httpErr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// retryWithBackoff executes fn with exponential backoff: base * 2^(attempt-1)
// plus random jitter up to 500ms, capped at 30s. The last error propagates
// when attempts are exhausted. Cancellation aborts immediately and is never
// retried.
func retryWithBackoff[T any](ctx context.Context, attempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if attempts <= 0 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !IsRetryable(err) || attempt == attempts {
			break
		}

		delay := base << (attempt - 1)
		delay += time.Duration(rand.Int63n(int64(maxRetryJitter)))
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
