package worker

import (
	"context"
	"errors"
	"time"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// Retry defaults, applied when the config leaves a field zero.
const (
	defaultMaxAttempts  = 5
	defaultInitialDelay = 100 * time.Millisecond
)

// RetryConfig bounds a retried operation.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; it doubles after
	// every subsequent failure.
	InitialDelay time.Duration
}

// sleepFn waits for d or until ctx is done. Swapped out in tests.
var sleepFn = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryWithBackoff runs op up to cfg.MaxAttempts times with exponential
// backoff between attempts. Permanent errors and context expiry stop the loop
// immediately; only the retrying unit of work waits, never the whole worker.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = defaultInitialDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if domain.IsPermanent(lastErr) ||
			errors.Is(lastErr, context.Canceled) ||
			errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := sleepFn(ctx, delay); err != nil {
			return lastErr
		}
		delay *= 2
	}
	return lastErr
}
