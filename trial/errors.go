/*
errors.go - Centralized error types for ingestion and loading

PURPOSE:
  All error kinds in one place so the CLI can map them to exit codes and the
  stores can classify engine errors consistently.

ERROR CATEGORIES:
  1. Configuration - missing input, unreachable store, incompatible schema
  2. Validation    - malformed input row (parser, strict policy)
  3. Duplicate key - Sample/CellCount identifier already present
  4. Constraint    - missing referenced row, negative count, bad enum value

USAGE:
  Check the category with errors.Is, or extract details with errors.As:

    if errors.Is(err, trial.ErrDuplicateKey) {
        var dup *trial.DuplicateKeyError
        errors.As(err, &dup)
    }

SEE ALSO:
  - loader.go: Wraps store errors in LoadError with row context
  - store/sqlstore: Classifies engine errors into these types
*/
package trial

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration marks fatal setup problems. Nothing has been written.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks a malformed input row.
	ErrValidation = errors.New("validation error")

	// ErrDuplicateKey is returned when an insert-once identifier already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrConstraintViolation is returned when a foreign key, check or not-null
	// constraint rejects a write.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrNotFound is returned by reads when the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError wraps a fatal setup failure.
type ConfigurationError struct {
	Op  string // e.g. "open input", "connect store", "check schema"
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

// ValidationError describes a malformed input row.
// Row 0 refers to the header.
type ValidationError struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("validation error: header: %s %s", e.Field, e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("validation error: row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("validation error: row %d: field %q: %s (value %q)",
		e.Row, e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DuplicateKeyError reports an insert-once row whose key already exists,
// either from the current run or a previous one.
type DuplicateKeyError struct {
	Relation string
	Key      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %s %q already exists", e.Relation, e.Key)
}

func (e *DuplicateKeyError) Unwrap() error {
	return ErrDuplicateKey
}

// ConstraintError reports a rejected write that is not a duplicate key.
type ConstraintError struct {
	Relation   string
	Key        string
	Constraint string // "foreign key", "check", "not null"
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("constraint violation: %s %q: %s: %v", e.Relation, e.Key, e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint violation: %s %q: %s", e.Relation, e.Key, e.Constraint)
}

func (e *ConstraintError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConstraintViolation}
	}
	return []error{ErrConstraintViolation, e.Err}
}

// LoadError attaches the failing input row to a write error.
type LoadError struct {
	Row    int
	Sample string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("load failed: %v", e.Err)
	}
	return fmt.Sprintf("load failed at row %d (sample %q): %v", e.Row, e.Sample, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInputError returns true if the error is caused by the input data rather
// than the environment.
func IsInputError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrConstraintViolation)
}
