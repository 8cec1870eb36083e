package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// RetryPolicy bounds how often a conflicting transaction is replayed.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 25 * time.Millisecond,
		MaxBackoff:  time.Second,
	}
}

// Backoff returns the exponential delay before retry number attempt,
// with up to 50% jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	d := p.BaseBackoff << (attempt - 1)
	if p.MaxBackoff > 0 && (d > p.MaxBackoff || d <= 0) {
		d = p.MaxBackoff
	}
	return d + time.Duration(rand.Int64N(int64(d)/2+1))
}

// Run calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Exhaustion wraps both ErrRetriesExhausted and the last
// error.
func (p RetryPolicy) Run(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := max(1, p.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
