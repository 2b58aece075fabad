// Package ratelimit gates bulk-action admission per account per UTC-minute
// window. The counter lives in the durable store so every API instance shares
// the same budget; the check-and-increment is a single conditional statement,
// never a read followed by a write.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// windowLayout yields labels that sort lexicographically in time order, so
// expiry can compare labels directly.
const windowLayout = "2006-01-02-15-04"

// WindowLabel returns the UTC-minute bucket label for t.
func WindowLabel(t time.Time) string {
	return t.UTC().Format(windowLayout)
}

// BucketStore is the conditional counter the limiter delegates to.
type BucketStore interface {
	IncrementRateBucket(ctx context.Context, accountID, window string, max int) (bool, error)
	ExpireRateBuckets(ctx context.Context, cutoff string) (int64, error)
}

// Limiter admits or denies job submissions per account.
type Limiter struct {
	store  BucketStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Limiter.
func New(store BucketStore, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Admit reports whether the account may submit another action in the current
// window. Admission consumes one unit of the window's budget; a denied call
// consumes nothing.
func (l *Limiter) Admit(ctx context.Context, accountID string, maxPerWindow int) (bool, error) {
	if maxPerWindow <= 0 {
		return false, nil
	}

	window := WindowLabel(l.now())
	allowed, err := l.store.IncrementRateBucket(ctx, accountID, window, maxPerWindow)
	if err != nil {
		return false, err
	}

	if !allowed {
		l.logger.Warn("Rate limit exceeded",
			slog.String("account_id", accountID),
			slog.String("window", window),
			slog.Int("max_per_window", maxPerWindow),
		)
	}
	return allowed, nil
}

// ExpireBuckets reclaims buckets older than ttl. Old buckets are inert; this
// only bounds table growth.
func (l *Limiter) ExpireBuckets(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := WindowLabel(l.now().Add(-ttl))
	return l.store.ExpireRateBuckets(ctx, cutoff)
}
