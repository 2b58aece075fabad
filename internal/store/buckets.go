package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// IncrementRateBucket performs the admission check for one request as a
// single atomic increment-with-cap. A fresh (account, window) bucket is
// created at usage 1; an existing bucket is only incremented while its usage
// is still below max. No row back means the bucket is full and nothing was
// mutated.
func (s *Store) IncrementRateBucket(ctx context.Context, accountID, window string, max int) (bool, error) {
	if max <= 0 {
		return false, nil
	}

	var usage int
	err := s.db.GetContext(ctx, &usage, `
		INSERT INTO rate_limit_buckets (account_id, window_label, usage_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, window_label)
		DO UPDATE SET usage_count = rate_limit_buckets.usage_count + 1
		WHERE rate_limit_buckets.usage_count < $3
		RETURNING usage_count
	`, accountID, window, max)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to increment rate bucket: %w", err)
	}
	return usage <= max, nil
}

// ExpireRateBuckets deletes buckets whose window label sorts before cutoff.
// Past windows are never read again; this is pure reclamation.
func (s *Store) ExpireRateBuckets(ctx context.Context, cutoff string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rate_limit_buckets WHERE window_label < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire rate buckets: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info("Expired rate limit buckets",
			slog.Int64("count", rows),
			slog.String("cutoff", cutoff),
		)
	}
	return rows, nil
}
