package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// AddStatsDelta adds a completing batch's local counts onto the cumulative
// counters. Always additive, never an overwrite: multiple batches for the
// same action finish concurrently, and the database serializes the adds.
func (s *Store) AddStatsDelta(ctx context.Context, actionID string, success, failure, skipped int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bulk_action_stats
		SET success_count   = success_count + $1,
		    failure_count   = failure_count + $2,
		    skipped_count   = skipped_count + $3,
		    total_processed = total_processed + $1 + $2 + $3,
		    updated_at      = NOW()
		WHERE action_id = $4
	`, success, failure, skipped, actionID)
	if err != nil {
		return fmt.Errorf("failed to add stats delta: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrActionNotFound
	}
	return nil
}

// GetStats reads the cumulative counters for one action.
func (s *Store) GetStats(ctx context.Context, actionID string) (*domain.ActionStats, error) {
	var stats domain.ActionStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT action_id, success_count, failure_count, skipped_count,
		       total_processed, updated_at
		FROM bulk_action_stats
		WHERE action_id = $1
	`, actionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get action stats: %w", err)
	}
	return &stats, nil
}
