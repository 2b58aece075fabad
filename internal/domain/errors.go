package domain

import "errors"

var (
	// ErrActionNotFound is returned when an action id has no record.
	ErrActionNotFound = errors.New("bulk action not found")

	// ErrUnknownEntityType is returned for entity types outside the fixed set.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrNoUpdatableFields is returned when the requested fields and the
	// entity's allow-list do not intersect.
	ErrNoUpdatableFields = errors.New("no updatable fields for entity type")

	// ErrMissingEmail is returned for a record without the email key.
	ErrMissingEmail = errors.New("record has no email")

	// ErrUnsupportedFormat is returned for source files that are neither
	// delimited tabular nor a structured list.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// PermanentError marks a per-record failure that must never be retried.
// Anything not wrapped as permanent or critical is assumed transient and
// eligible for backoff retry.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a non-retryable per-record failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is a non-retryable failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// CriticalBatchError marks a batch-level fault: the remaining records are
// abandoned and the whole action is forced to FAILED.
type CriticalBatchError struct {
	Err error
}

func (e *CriticalBatchError) Error() string {
	return "critical batch error: " + e.Err.Error()
}

func (e *CriticalBatchError) Unwrap() error {
	return e.Err
}

// Critical wraps err as a batch-level fault.
func Critical(err error) error {
	if err == nil {
		return nil
	}
	return &CriticalBatchError{Err: err}
}

// IsCritical reports whether err is a batch-level fault.
func IsCritical(err error) bool {
	var ce *CriticalBatchError
	return errors.As(err, &ce)
}
