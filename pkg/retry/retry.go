// Package retry provides bounded retry with exponential backoff for a single
// fallible operation. It knows nothing about webhooks or licensing.
package retry

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

type options struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	shouldRetry func(error) bool
	onRetry     func(attempt int, err error)
}

type Option func(*options)

// WithMaxAttempts sets the total attempt ceiling (including the first call).
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxDelay = d
		}
	}
}

// WithShouldRetry installs a predicate consulted after each failure. When it
// returns false the error is returned immediately without further attempts.
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.shouldRetry = fn
		}
	}
}

// WithOnRetry installs an observer invoked before each backoff wait with the
// 1-indexed attempt number that just failed. It never fires after the final
// attempt.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Delay returns the backoff wait after the given 1-indexed failed attempt:
// min(base * 2^(attempt-1), cap).
func Delay(attempt int, base, cap time.Duration) time.Duration {
	d := base << (attempt - 1)
	if d > cap || d <= 0 {
		return cap
	}
	return d
}

// Do runs op until it succeeds, the attempt ceiling is reached, the predicate
// rejects the error, or ctx is cancelled. Backoff waits suspend the calling
// goroutine only.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		shouldRetry: func(error) bool { return true },
	}
	for _, apply := range opts {
		apply(&o)
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == o.maxAttempts || !o.shouldRetry(err) {
			return zero, err
		}
		if o.onRetry != nil {
			o.onRetry(attempt, err)
		}

		timer := time.NewTimer(Delay(attempt, o.baseDelay, o.maxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
