package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryManager runs an operation again after transient failures with
// exponential backoff and jitter.
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryManager creates a new RetryManager
func NewRetryManager(maxRetries int, baseDelay time.Duration) *RetryManager {
	return &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16, // Maximum 16x base delay
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the retries run
// out or ctx is done. The last error is returned unwrapped.
func (r *RetryManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= r.maxRetries {
			return err
		}

		timer := time.NewTimer(r.calculateBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// calculateBackoff calculates exponential backoff delay with jitter
func (r *RetryManager) calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 || r.baseDelay <= 0 {
		return r.baseDelay
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := r.baseDelay * time.Duration(1<<(attempt-1))

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	// Cap at maximum delay
	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}

	return backoff
}
