package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// stubSleep replaces sleepFn for the duration of a test, recording requested
// delays instead of waiting.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleepFn = orig })
	return &delays
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	delays := stubSleep(t)

	calls := 0
	err := retryWithBackoff(context.Background(), RetryConfig{}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *delays, 2)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	stubSleep(t)

	calls := 0
	wantErr := errors.New("still broken")
	err := retryWithBackoff(context.Background(), RetryConfig{MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 5, calls)
}

func TestRetryWithBackoff_PermanentStopsImmediately(t *testing.T) {
	stubSleep(t)

	calls := 0
	err := retryWithBackoff(context.Background(), RetryConfig{}, func(ctx context.Context) error {
		calls++
		return domain.Permanent(errors.New("bad input"))
	})

	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ContextCancelStops(t *testing.T) {
	stubSleep(t)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryWithBackoff(ctx, RetryConfig{}, func(ctx context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_DelayDoubles(t *testing.T) {
	delays := stubSleep(t)

	calls := 0
	err := retryWithBackoff(context.Background(), RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
	}, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}, *delays)
}
