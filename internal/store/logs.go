package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// AppendLog inserts one immutable log entry. Entries are never updated or
// deleted.
func (s *Store) AppendLog(ctx context.Context, actionID string, entry *domain.LogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal log details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_action_logs (action_id, event_type, email, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, actionID, entry.EventType, entry.Email, entry.Message, details, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append action log: %w", err)
	}
	return nil
}

// ListLogs returns all log entries for an action in insertion order.
func (s *Store) ListLogs(ctx context.Context, actionID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, action_id, event_type, email, message, details, created_at
		FROM bulk_action_logs
		WHERE action_id = $1
		ORDER BY created_at, log_id
	`, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var details []byte
		if err := rows.Scan(
			&entry.LogID,
			&entry.ActionID,
			&entry.EventType,
			&entry.Email,
			&entry.Message,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action log: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read action logs: %w", err)
	}
	return entries, nil
}

// MarkProcessed conditionally inserts the dedup marker for (actionID, email).
// The marker's existence is the idempotency boundary against at-least-once
// delivery. Returns false when the marker already existed; that is an
// expected conflict, not an error.
func (s *Store) MarkProcessed(ctx context.Context, actionID, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_records (action_id, email)
		VALUES ($1, $2)
		ON CONFLICT (action_id, email) DO NOTHING
	`, actionID, email)
	if err != nil {
		return false, fmt.Errorf("failed to mark record processed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// IsProcessed reports whether the dedup marker for (actionID, email) exists.
func (s *Store) IsProcessed(ctx context.Context, actionID, email string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM processed_records WHERE action_id = $1 AND email = $2
		)
	`, actionID, email)
	if err != nil {
		return false, fmt.Errorf("failed to check processed record: %w", err)
	}
	return exists, nil
}
