// Package enqueuer splits a bulk action's record set into fixed-size batches
// and publishes them to the work queue, then flips the action to IN_PROGRESS.
package enqueuer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// DefaultBatchSize is the number of records per published batch.
const DefaultBatchSize = 100

// RecordSource retrieves the ordered record set behind a source locator.
type RecordSource interface {
	ReadRecords(ctx context.Context, locator string) ([]domain.Record, error)
}

// Publisher publishes one message to the work queue.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// ActionStore is the status side of the job store the enqueuer needs.
type ActionStore interface {
	TransitionStatus(ctx context.Context, actionID, to string) (bool, error)
}

// Config holds enqueuer settings.
type Config struct {
	Logger *slog.Logger
	Source RecordSource
	Queue  Publisher
	Store  ActionStore

	// BatchSize is the records-per-batch split size; 0 means DefaultBatchSize.
	BatchSize int
	// PublishPerSecond paces batch publishing; 0 means unpaced.
	PublishPerSecond int
}

// Enqueuer loads, splits, and publishes bulk action batches.
type Enqueuer struct {
	logger    *slog.Logger
	source    RecordSource
	queue     Publisher
	store     ActionStore
	batchSize int
	limiter   *rate.Limiter
}

// New creates an Enqueuer.
func New(cfg *Config) *Enqueuer {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.PublishPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PublishPerSecond), cfg.PublishPerSecond)
	}

	return &Enqueuer{
		logger:    cfg.Logger,
		source:    cfg.Source,
		queue:     cfg.Queue,
		store:     cfg.Store,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

// Enqueue loads the action's records, publishes them in order as fixed-size
// batches, and transitions the action to IN_PROGRESS once every batch is out.
// A failure partway leaves already-published batches live and the action at
// QUEUED; a stale QUEUED age is a health signal, not a correctness problem.
func (e *Enqueuer) Enqueue(ctx context.Context, action *domain.Action) error {
	records, err := e.source.ReadRecords(ctx, action.FileURL)
	if err != nil {
		return fmt.Errorf("failed to load records for action %s: %w", action.ActionID, err)
	}

	if len(records) == 0 {
		// Nothing to process: resolve the action instead of leaving it
		// IN_PROGRESS with no batches to ever settle it.
		if _, err := e.store.TransitionStatus(ctx, action.ActionID, domain.StatusSkipped); err != nil {
			return fmt.Errorf("failed to resolve empty action %s: %w", action.ActionID, err)
		}
		e.logger.Info("Action source contained no records",
			slog.String("action_id", action.ActionID),
		)
		return nil
	}

	batches := 0
	for start := 0; start < len(records); start += e.batchSize {
		end := start + e.batchSize
		if end > len(records) {
			end = len(records)
		}

		msg := domain.BatchMessage{
			ActionID:       action.ActionID,
			Records:        records[start:end],
			EntityType:     action.EntityType,
			FieldsToUpdate: action.FieldsToUpdate,
		}

		body, err := json.Marshal(&msg)
		if err != nil {
			return fmt.Errorf("failed to marshal batch message: %w", err)
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := e.queue.PublishWithRetry(ctx, body, "application/json"); err != nil {
			return fmt.Errorf("failed to publish batch %d for action %s: %w", batches+1, action.ActionID, err)
		}
		batches++
	}

	transitioned, err := e.store.TransitionStatus(ctx, action.ActionID, domain.StatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark action %s in progress: %w", action.ActionID, err)
	}

	e.logger.Info("Action batches enqueued",
		slog.String("action_id", action.ActionID),
		slog.Int("records", len(records)),
		slog.Int("batches", batches),
		slog.Bool("transitioned", transitioned),
	)
	return nil
}
