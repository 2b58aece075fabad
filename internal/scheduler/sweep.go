// Package scheduler promotes due SCHEDULED actions into the enqueue path.
// Sweeps may overlap across instances; the conditional SCHEDULED→QUEUED
// transition guarantees each due action is enqueued by exactly one sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamnbq/bulkops-be/internal/domain"
	"github.com/tamnbq/bulkops-be/internal/ratelimit"
)

// ActionStore is the job-store surface the sweep needs.
type ActionStore interface {
	ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Action, error)
	TransitionStatus(ctx context.Context, actionID, to string) (bool, error)
	ExpireRateBuckets(ctx context.Context, cutoff string) (int64, error)
}

// Enqueuer publishes an action's batches.
type Enqueuer interface {
	Enqueue(ctx context.Context, action *domain.Action) error
}

// Sweep finds due scheduled actions and hands them to the enqueuer.
type Sweep struct {
	store    ActionStore
	enqueuer Enqueuer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Sweep.
func New(store ActionStore, enq Enqueuer, logger *slog.Logger) *Sweep {
	return &Sweep{
		store:    store,
		enqueuer: enq,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs one sweep. Each due action is enqueued only when this sweep
// won the SCHEDULED→QUEUED transition; losing the race to a concurrent sweep
// is expected and skips the action. Enqueue failures leave the action at
// QUEUED and do not abort the rest of the sweep.
func (s *Sweep) Run(ctx context.Context) error {
	now := s.now()
	actions, err := s.store.ListDueScheduled(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due actions: %w", err)
	}

	promoted := 0
	for i := range actions {
		action := actions[i]

		won, err := s.store.TransitionStatus(ctx, action.ActionID, domain.StatusQueued)
		if err != nil {
			s.logger.Error("Failed to promote scheduled action",
				slog.String("action_id", action.ActionID),
				slog.Any("error", err),
			)
			continue
		}
		if !won {
			s.logger.Debug("Scheduled action already promoted by another sweep",
				slog.String("action_id", action.ActionID),
			)
			continue
		}

		action.Status = domain.StatusQueued
		if err := s.enqueuer.Enqueue(ctx, &action); err != nil {
			s.logger.Error("Failed to enqueue promoted action",
				slog.String("action_id", action.ActionID),
				slog.Any("error", err),
			)
			continue
		}
		promoted++
	}

	if len(actions) > 0 {
		s.logger.Info("Schedule sweep complete",
			slog.Int("due", len(actions)),
			slog.Int("promoted", promoted),
		)
	}
	return nil
}

// ExpireRateBuckets reclaims rate-limit buckets older than ttl.
func (s *Sweep) ExpireRateBuckets(ctx context.Context, ttl time.Duration) error {
	cutoff := ratelimit.WindowLabel(s.now().Add(-ttl))
	if _, err := s.store.ExpireRateBuckets(ctx, cutoff); err != nil {
		return fmt.Errorf("failed to expire rate buckets: %w", err)
	}
	return nil
}
