package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucketStore struct {
	counts  map[string]int
	err     error
	expired []string
}

func newFakeBucketStore() *fakeBucketStore {
	return &fakeBucketStore{counts: make(map[string]int)}
}

func (f *fakeBucketStore) IncrementRateBucket(ctx context.Context, accountID, window string, max int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	key := accountID + "|" + window
	if f.counts[key] >= max {
		return false, nil
	}
	f.counts[key]++
	return true, nil
}

func (f *fakeBucketStore) ExpireRateBuckets(ctx context.Context, cutoff string) (int64, error) {
	f.expired = append(f.expired, cutoff)
	return 0, f.err
}

func newTestLimiter(store BucketStore) *Limiter {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLimiter_AdmitUpToCap(t *testing.T) {
	store := newFakeBucketStore()
	l := newTestLimiter(store)

	for i := 0; i < 3; i++ {
		allowed, err := l.Admit(context.Background(), "acct-1", 3)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be admitted", i+1)
	}

	allowed, err := l.Admit(context.Background(), "acct-1", 3)
	require.NoError(t, err)
	assert.False(t, allowed, "request past the cap must be denied")
}

func TestLimiter_AccountsAreIndependent(t *testing.T) {
	store := newFakeBucketStore()
	l := newTestLimiter(store)

	allowed, err := l.Admit(context.Background(), "acct-1", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Admit(context.Background(), "acct-2", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "other accounts keep their own budget")
}

func TestLimiter_WindowRollover(t *testing.T) {
	store := newFakeBucketStore()
	l := newTestLimiter(store)

	now := time.Date(2025, 6, 1, 10, 30, 59, 0, time.UTC)
	l.now = func() time.Time { return now }

	allowed, err := l.Admit(context.Background(), "acct-1", 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = l.Admit(context.Background(), "acct-1", 1)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Next minute opens a fresh bucket.
	now = now.Add(time.Second)
	allowed, err = l.Admit(context.Background(), "acct-1", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_NonPositiveMaxDenies(t *testing.T) {
	store := newFakeBucketStore()
	l := newTestLimiter(store)

	allowed, err := l.Admit(context.Background(), "acct-1", 0)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Empty(t, store.counts)
}

func TestLimiter_StoreErrorDenies(t *testing.T) {
	store := newFakeBucketStore()
	store.err = errors.New("db unavailable")
	l := newTestLimiter(store)

	allowed, err := l.Admit(context.Background(), "acct-1", 5)
	require.Error(t, err)
	assert.False(t, allowed)
}

func TestLimiter_ExpireBucketsCutoff(t *testing.T) {
	store := newFakeBucketStore()
	l := newTestLimiter(store)

	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, err := l.ExpireBuckets(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, store.expired, 1)
	assert.Equal(t, "2025-06-01-09-30", store.expired[0])
}

func TestWindowLabel_SortsLexicographically(t *testing.T) {
	earlier := WindowLabel(time.Date(2025, 6, 1, 9, 59, 0, 0, time.UTC))
	later := WindowLabel(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	assert.Less(t, earlier, later)
}

func TestWindowLabel_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2025, 6, 1, 17, 30, 0, 0, loc)
	assert.Equal(t, "2025-06-01-10-30", WindowLabel(local))
}
