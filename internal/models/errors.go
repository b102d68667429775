package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel for operations referencing a session or entry
// with no backing data. Wrap it with context via NotFoundError.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input: an enum value outside the allowed
// set or a numeric field outside its domain. The offending message is never
// stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError wraps ErrNotFound with the entity that was looked up.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConsistencyError reports derived state diverging from the event store
// beyond tolerance. Callers must trigger a recomputation, never trust the
// stale aggregate.
type ConsistencyError struct {
	Entity string
	Key    string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency check failed for %s %q: %s", e.Entity, e.Key, e.Detail)
}

// StorageError wraps an underlying persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
