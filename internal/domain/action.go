package domain

import (
	"time"

	"github.com/lib/pq"
)

// Bulk action lifecycle statuses.
const (
	StatusScheduled          = "SCHEDULED"
	StatusQueued             = "QUEUED"
	StatusInProgress         = "IN_PROGRESS"
	StatusSkipped            = "SKIPPED"
	StatusCompleted          = "COMPLETED"
	StatusFailed             = "FAILED"
	StatusPartiallyCompleted = "PARTIALLY_COMPLETED"
)

// Action types. Only field updates are supported today.
const (
	ActionTypeUpdate = "UPDATE"
)

// statusRank orders statuses so that a write is only valid when the current
// status ranks strictly below the target. COMPLETED and FAILED share a rank:
// cumulative counters can never flip one into the other, they can only refine
// either into PARTIALLY_COMPLETED once both successes and failures exist.
// SKIPPED sits below the counted terminals so an action resolved from dedup
// markers alone can still settle once real outcomes arrive on redelivery.
var statusRank = map[string]int{
	StatusScheduled:          0,
	StatusQueued:             1,
	StatusInProgress:         2,
	StatusSkipped:            3,
	StatusCompleted:          4,
	StatusFailed:             4,
	StatusPartiallyCompleted: 5,
}

// StatusRank returns the ordering rank of a status, and whether it is known.
func StatusRank(status string) (int, bool) {
	r, ok := statusRank[status]
	return r, ok
}

// CanTransition reports whether a status write from -> to moves strictly
// forward. Writing the same status again is not a transition; stores treat it
// as an idempotent no-op.
func CanTransition(from, to string) bool {
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return fr < tr
}

// StatusesBelow returns every status ranked strictly below to. This is the
// predecessor set a conditional status update must match against.
func StatusesBelow(to string) []string {
	tr, ok := statusRank[to]
	if !ok {
		return nil
	}
	var below []string
	for s, r := range statusRank {
		if r < tr {
			below = append(below, s)
		}
	}
	return below
}

// IsTerminal reports whether a status is one of the resolved end states.
func IsTerminal(status string) bool {
	r, ok := statusRank[status]
	return ok && r >= statusRank[StatusSkipped]
}

// Action is one bulk-update request over a CRM entity set.
type Action struct {
	ActionID       string         `db:"action_id"`
	AccountID      string         `db:"account_id"`
	FileURL        string         `db:"file_url"`
	EntityType     string         `db:"entity_type"`
	ActionType     string         `db:"action_type"`
	FieldsToUpdate pq.StringArray `db:"fields_to_update"`
	Status         string         `db:"status"`
	ScheduledAt    *time.Time     `db:"scheduled_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// ActionStats holds the cumulative per-record outcome counters for one action.
// Counters only ever grow, by additive conditional increments from completing
// batches. TotalProcessed always equals the sum of the other three.
type ActionStats struct {
	ActionID       string    `db:"action_id"`
	SuccessCount   int64     `db:"success_count"`
	FailureCount   int64     `db:"failure_count"`
	SkippedCount   int64     `db:"skipped_count"`
	TotalProcessed int64     `db:"total_processed"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DeriveStatus computes the action status purely from cumulative counters.
// The bool is false when nothing has been counted yet and no status can be
// derived.
func DeriveStatus(stats *ActionStats) (string, bool) {
	switch {
	case stats.SuccessCount > 0 && stats.FailureCount == 0:
		return StatusCompleted, true
	case stats.SuccessCount > 0 && stats.FailureCount > 0:
		return StatusPartiallyCompleted, true
	case stats.SuccessCount == 0 && stats.FailureCount > 0:
		return StatusFailed, true
	case stats.SkippedCount > 0:
		return StatusSkipped, true
	default:
		return "", false
	}
}

// Log event kinds.
const (
	EventSuccess      = "SUCCESS"
	EventFailure      = "FAILURE"
	EventSkip         = "SKIP"
	EventStatusUpdate = "STATUS_UPDATE"
)

// LogEntry is one immutable, append-only audit record: a per-record outcome
// or a job-level status transition.
type LogEntry struct {
	LogID     int64
	ActionID  string
	EventType string
	Email     string
	Message   string
	Details   map[string]string
	CreatedAt time.Time
}

// Record is one flat key/value row parsed from the source file. The email
// value is the upsert and dedup key.
type Record map[string]string

// Email returns the record's dedup key.
func (r Record) Email() string {
	return r["email"]
}

// BatchMessage is the unit of queue delivery: a bounded slice of an action's
// records plus everything a worker needs to apply them.
type BatchMessage struct {
	ActionID       string   `json:"action_id"`
	Records        []Record `json:"records"`
	EntityType     string   `json:"entity_type"`
	FieldsToUpdate []string `json:"fields_to_update"`
}
