// Package store is the durable side of the pipeline: action metadata, stats
// counters, append-only logs, dedup markers, and rate-limit buckets. Every
// piece of shared mutable state is touched only through conditional or
// additive statements; there are no read-modify-write cycles here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tamnbq/bulkops-be/internal/domain"
	"github.com/tamnbq/bulkops-be/shared/postgresql"
)

// Store handles all database operations for bulk actions.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store on top of a shared PostgreSQL client.
func NewStore(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// CreateAction inserts the action and its zeroed stats row in one
// transaction, so stats deltas from the first completing batch always have a
// row to add onto.
func (s *Store) CreateAction(ctx context.Context, action *domain.Action) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bulk_actions (
			action_id, account_id, file_url, entity_type, action_type,
			fields_to_update, status, scheduled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		action.ActionID,
		action.AccountID,
		action.FileURL,
		action.EntityType,
		action.ActionType,
		action.FieldsToUpdate,
		action.Status,
		action.ScheduledAt,
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bulk action: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bulk_action_stats (action_id) VALUES ($1)
	`, action.ActionID)
	if err != nil {
		return fmt.Errorf("failed to create action stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit action creation: %w", err)
	}

	return nil
}

// GetAction retrieves one action by id.
func (s *Store) GetAction(ctx context.Context, actionID string) (*domain.Action, error) {
	var action domain.Action
	err := s.db.GetContext(ctx, &action, `
		SELECT action_id, account_id, file_url, entity_type, action_type,
		       fields_to_update, status, scheduled_at, created_at, updated_at
		FROM bulk_actions
		WHERE action_id = $1
	`, actionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get bulk action: %w", err)
	}
	return &action, nil
}

// ActionFilter narrows ListActions results.
type ActionFilter struct {
	AccountID  string
	Status     string
	EntityType string
	PageSize   int
	Cursor     *ActionCursor
}

// ActionCursor is a keyset pagination position over (created_at, action_id).
type ActionCursor struct {
	CreatedAt time.Time
	ActionID  string
}

// ListActions lists actions newest-first with keyset pagination. It fetches
// one row past the page size so callers can tell whether more results exist.
func (s *Store) ListActions(ctx context.Context, filter ActionFilter) ([]domain.Action, error) {
	query := `
		SELECT action_id, account_id, file_url, entity_type, action_type,
		       fields_to_update, status, scheduled_at, created_at, updated_at
		FROM bulk_actions
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.AccountID != "" {
		query += fmt.Sprintf(" AND account_id = $%d", argIdx)
		args = append(args, filter.AccountID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, filter.EntityType)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, action_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ActionID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, action_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var actions []domain.Action
	if err := s.db.SelectContext(ctx, &actions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bulk actions: %w", err)
	}
	return actions, nil
}

// ListDueScheduled returns SCHEDULED actions whose scheduled time has passed.
func (s *Store) ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Action, error) {
	var actions []domain.Action
	err := s.db.SelectContext(ctx, &actions, `
		SELECT action_id, account_id, file_url, entity_type, action_type,
		       fields_to_update, status, scheduled_at, created_at, updated_at
		FROM bulk_actions
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at
	`, domain.StatusScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled actions: %w", err)
	}
	return actions, nil
}

// TransitionStatus conditionally moves an action to status to. The update
// matches only when the current status ranks strictly below the target, which
// makes the write forward-only, race-safe under concurrent batch completion,
// and an idempotent no-op when the target status is already set. Returns
// whether this call performed the transition.
func (s *Store) TransitionStatus(ctx context.Context, actionID, to string) (bool, error) {
	predecessors := domain.StatusesBelow(to)
	if len(predecessors) == 0 {
		return false, fmt.Errorf("invalid target status %q", to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE bulk_actions
		SET status = $1, updated_at = NOW()
		WHERE action_id = $2 AND status = ANY($3)
	`, to, actionID, pq.Array(predecessors))
	if err != nil {
		return false, fmt.Errorf("failed to transition status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		s.logger.Info("Action status transitioned",
			slog.String("action_id", actionID),
			slog.String("status", to),
		)
	}
	return rows > 0, nil
}

// ForceStatus sets the status unconditionally. Reserved for critical batch
// errors, which override whatever the cumulative counters would derive.
func (s *Store) ForceStatus(ctx context.Context, actionID, to string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bulk_actions
		SET status = $1, updated_at = NOW()
		WHERE action_id = $2
	`, to, actionID)
	if err != nil {
		return fmt.Errorf("failed to force status: %w", err)
	}

	s.logger.Warn("Action status forced",
		slog.String("action_id", actionID),
		slog.String("status", to),
	)
	return nil
}
