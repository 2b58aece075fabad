package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// defaultRecordTimeout bounds one record's external calls so a stuck
// collaborator cannot stall the whole batch.
const defaultRecordTimeout = 10 * time.Second

// ActionStore is the job-store surface the processor needs.
type ActionStore interface {
	IsProcessed(ctx context.Context, actionID, email string) (bool, error)
	MarkProcessed(ctx context.Context, actionID, email string) (bool, error)
	AddStatsDelta(ctx context.Context, actionID string, success, failure, skipped int64) error
	GetStats(ctx context.Context, actionID string) (*domain.ActionStats, error)
	TransitionStatus(ctx context.Context, actionID, to string) (bool, error)
	ForceStatus(ctx context.Context, actionID, to string) error
	AppendLog(ctx context.Context, actionID string, entry *domain.LogEntry) error
}

// EntityStore applies one record's update to the relational store.
type EntityStore interface {
	Upsert(ctx context.Context, entityType string, record domain.Record, fields []domain.EntityField) error
}

// ProcessorConfig holds processor dependencies and tuning.
type ProcessorConfig struct {
	Logger        *slog.Logger
	Store         ActionStore
	Entities      EntityStore
	AllowList     domain.AllowList
	RecordTimeout time.Duration
	Retry         RetryConfig
}

// Processor runs the per-batch state machine: dedup, allow-list filter,
// upsert, marker insert, stats merge, and status derivation.
type Processor struct {
	logger        *slog.Logger
	store         ActionStore
	entities      EntityStore
	allow         domain.AllowList
	recordTimeout time.Duration
	retry         RetryConfig
}

// NewProcessor creates a Processor.
func NewProcessor(cfg *ProcessorConfig) *Processor {
	allow := cfg.AllowList
	if allow == nil {
		allow = domain.DefaultAllowList()
	}
	recordTimeout := cfg.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = defaultRecordTimeout
	}
	return &Processor{
		logger:        cfg.Logger,
		store:         cfg.Store,
		entities:      cfg.Entities,
		allow:         allow,
		recordTimeout: recordTimeout,
		retry:         cfg.Retry,
	}
}

type batchCounts struct {
	success int64
	failure int64
	skipped int64
}

// ProcessBatch applies one batch. Per-record failures are isolated; only a
// critical batch error abandons the remaining records and forces the whole
// action to FAILED. The returned error is nil once the batch's outcome is
// durably recorded; a critical or permanent error means the message must not
// be redelivered, anything else is transient and safe to requeue because
// applied records are shielded by their dedup markers.
func (p *Processor) ProcessBatch(ctx context.Context, msg *domain.BatchMessage) error {
	if err := validateBatch(msg); err != nil {
		if msg.ActionID == "" {
			// Nowhere to record the failure; drop to the dead letter path.
			return domain.Critical(err)
		}
		return p.failBatch(ctx, msg.ActionID, err)
	}

	counts, err := p.processRecords(ctx, msg)
	if err != nil {
		if domain.IsCritical(err) {
			return p.failBatch(ctx, msg.ActionID, err)
		}
		return err
	}

	if err := retryWithBackoff(ctx, p.retry, func(c context.Context) error {
		return p.store.AddStatsDelta(c, msg.ActionID, counts.success, counts.failure, counts.skipped)
	}); err != nil {
		return fmt.Errorf("failed to merge batch stats for action %s: %w", msg.ActionID, err)
	}

	// Status derives from the read-back cumulative totals, never from this
	// batch's local counts: other batches for the same action may have
	// finished in the meantime.
	var stats *domain.ActionStats
	if err := retryWithBackoff(ctx, p.retry, func(c context.Context) error {
		var getErr error
		stats, getErr = p.store.GetStats(c, msg.ActionID)
		return getErr
	}); err != nil {
		return fmt.Errorf("failed to read cumulative stats for action %s: %w", msg.ActionID, err)
	}

	status, ok := domain.DeriveStatus(stats)
	if !ok {
		return nil
	}

	won, err := p.store.TransitionStatus(ctx, msg.ActionID, status)
	if err != nil {
		return fmt.Errorf("failed to update status for action %s: %w", msg.ActionID, err)
	}
	if won {
		p.appendLog(ctx, msg.ActionID, &domain.LogEntry{
			EventType: domain.EventStatusUpdate,
			Message:   "status updated to " + status,
			Details:   map[string]string{"status": status},
		})
	}

	p.logger.Info("Batch processed",
		slog.String("action_id", msg.ActionID),
		slog.Int64("success", counts.success),
		slog.Int64("failure", counts.failure),
		slog.Int64("skipped", counts.skipped),
		slog.String("status", status),
	)
	return nil
}

func validateBatch(msg *domain.BatchMessage) error {
	if msg.ActionID == "" {
		return fmt.Errorf("batch message has no action id")
	}
	if !domain.IsEntityType(msg.EntityType) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, msg.EntityType)
	}
	if len(msg.Records) == 0 {
		return fmt.Errorf("batch message has no records")
	}
	return nil
}

// processRecords walks the batch in order, accumulating local counts. A
// panic escaping a record is converted into a critical batch error; context
// expiry aborts with a transient error so the message is redelivered.
func (p *Processor) processRecords(ctx context.Context, msg *domain.BatchMessage) (counts batchCounts, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Critical(fmt.Errorf("panic while processing batch: %v", r))
		}
	}()

	fields := p.allow.Filter(msg.EntityType, msg.FieldsToUpdate)

	for _, record := range msg.Records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return counts, ctxErr
		}

		outcome := p.processRecord(ctx, msg.ActionID, msg.EntityType, record, fields)

		switch outcome.event {
		case domain.EventSuccess:
			counts.success++
		case domain.EventSkip:
			counts.skipped++
		default:
			counts.failure++
		}

		p.appendLog(ctx, msg.ActionID, &domain.LogEntry{
			EventType: outcome.event,
			Email:     record.Email(),
			Message:   outcome.message,
			Details:   outcome.details,
		})
	}
	return counts, nil
}

type recordOutcome struct {
	event   string
	message string
	details map[string]string
}

func failureOutcome(err error) recordOutcome {
	return recordOutcome{event: domain.EventFailure, message: err.Error()}
}

// processRecord runs the per-record state machine under the record timeout.
// The upsert and the marker insert are each retried with exponential backoff;
// everything else fails the record immediately.
func (p *Processor) processRecord(ctx context.Context, actionID, entityType string, record domain.Record, fields []domain.EntityField) recordOutcome {
	rctx, cancel := context.WithTimeout(ctx, p.recordTimeout)
	defer cancel()

	email := record.Email()
	if email == "" {
		return failureOutcome(domain.ErrMissingEmail)
	}

	processed, err := p.store.IsProcessed(rctx, actionID, email)
	if err != nil {
		return failureOutcome(fmt.Errorf("dedup check failed: %w", err))
	}
	if processed {
		return recordOutcome{event: domain.EventSkip, message: "already processed"}
	}

	if len(fields) == 0 {
		return failureOutcome(fmt.Errorf("%w: %s", domain.ErrNoUpdatableFields, entityType))
	}

	if err := retryWithBackoff(rctx, p.retry, func(c context.Context) error {
		return p.entities.Upsert(c, entityType, record, fields)
	}); err != nil {
		return failureOutcome(fmt.Errorf("update failed: %w", err))
	}

	var inserted bool
	if err := retryWithBackoff(rctx, p.retry, func(c context.Context) error {
		var markErr error
		inserted, markErr = p.store.MarkProcessed(c, actionID, email)
		return markErr
	}); err != nil {
		return failureOutcome(fmt.Errorf("failed to mark record processed: %w", err))
	}
	if !inserted {
		// Another delivery won the marker race after our dedup check: the
		// record is already accounted for, count it as a late skip.
		return recordOutcome{event: domain.EventSkip, message: "already processed"}
	}

	applied := make(map[string]string, len(fields))
	for _, f := range fields {
		applied[f.Name] = record[f.Name]
	}
	return recordOutcome{
		event:   domain.EventSuccess,
		message: "record processed",
		details: applied,
	}
}

// failBatch forces the action to FAILED and records the cause. The forced
// write overrides whatever the cumulative counters would derive.
func (p *Processor) failBatch(ctx context.Context, actionID string, cause error) error {
	p.logger.Error("Critical batch error",
		slog.String("action_id", actionID),
		slog.Any("error", cause),
	)

	if err := retryWithBackoff(ctx, p.retry, func(c context.Context) error {
		return p.store.ForceStatus(c, actionID, domain.StatusFailed)
	}); err != nil {
		p.logger.Error("Failed to force action status to FAILED",
			slog.String("action_id", actionID),
			slog.Any("error", err),
		)
	}

	p.appendLog(ctx, actionID, &domain.LogEntry{
		EventType: domain.EventStatusUpdate,
		Message:   cause.Error(),
		Details:   map[string]string{"status": domain.StatusFailed},
	})

	if domain.IsCritical(cause) {
		return cause
	}
	return domain.Critical(cause)
}

// appendLog is best-effort: a log write failure never changes a record's or
// batch's outcome, it is only reported.
func (p *Processor) appendLog(ctx context.Context, actionID string, entry *domain.LogEntry) {
	if err := p.store.AppendLog(ctx, actionID, entry); err != nil {
		p.logger.Error("Failed to append action log",
			slog.String("action_id", actionID),
			slog.String("event_type", entry.EventType),
			slog.Any("error", err),
		)
	}
}
