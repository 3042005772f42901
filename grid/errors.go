/*
errors.go - Centralized error types for the grid engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Other packages (suggest, action, workflow, guard) wrap these errors
  with additional context.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any network call
  2. Transient errors  - Network failures that may succeed on retry
  3. Supersession      - A newer request of the same kind replaced this one

USAGE:
  if errors.Is(err, grid.ErrColumnNotEditable) {
      // surface inline at the point of entry
  }
  if grid.IsSuperseded(err) {
      // silent: a newer request took over
  }

SEE ALSO:
  - model.go: Returns validation errors from mutators
  - guard/guard.go: Produces supersession cancellations
*/
package grid

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrColumnNotFound is returned when a write targets a column that does
	// not exist in the grid.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRowNotFound is returned when a write targets a row that does not
	// exist and cannot be resolved by company id or name.
	ErrRowNotFound = errors.New("row not found")

	// ErrColumnNotEditable is returned when a non-agent write targets a
	// read-only column.
	ErrColumnNotEditable = errors.New("column not editable")

	// ErrIdentifierAsName is returned when a company-name edit looks like an
	// internal identifier (UUID or company slug) rather than a human name.
	ErrIdentifierAsName = errors.New("identifier used as company name")

	// ErrEmptyWorkflow is returned when a workflow formula parses to zero
	// action ids.
	ErrEmptyWorkflow = errors.New("workflow has no action ids")

	// ErrUnknownTarget is returned for a workflow target outside
	// current/all/selected.
	ErrUnknownTarget = errors.New("unknown workflow target")

	// ErrEditInFlight is returned when a background refresh is dropped
	// because edits are pending. Refreshes are never queued.
	ErrEditInFlight = errors.New("edit in flight, refresh dropped")

	// ErrSuperseded is the cancellation cause used when a newer request of
	// the same kind replaces an older one. Always swallowed silently.
	ErrSuperseded = errors.New("superseded by newer request")

	// ErrTransient marks a network failure that may succeed on retry.
	ErrTransient = errors.New("transient network failure")

	// ErrSuggestionNotFound is returned when accept/reject targets an id
	// absent from the current server list.
	ErrSuggestionNotFound = errors.New("suggestion not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CellError identifies the cell a validation failure is about.
type CellError struct {
	RowID    RowID
	ColumnID ColumnID
	Err      error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell %s/%s: %v", e.RowID, e.ColumnID, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// TransientError wraps a network failure with the operation that failed.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input and should
// surface inline at the point of entry, before any network call.
func IsClientError(err error) bool {
	return errors.Is(err, ErrColumnNotFound) ||
		errors.Is(err, ErrRowNotFound) ||
		errors.Is(err, ErrColumnNotEditable) ||
		errors.Is(err, ErrIdentifierAsName) ||
		errors.Is(err, ErrEmptyWorkflow) ||
		errors.Is(err, ErrUnknownTarget)
}

// IsRetryable returns true if the error might succeed on a single retry.
// Only idempotent reads are ever retried; writes roll back instead.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsSuperseded reports whether err is a cancellation caused by a newer
// request of the same kind. These are swallowed silently, never surfaced.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}

// CancellationError resolves a context cancellation to its cause, so callers
// can distinguish supersession (silent) from genuine failure (surfaced).
func CancellationError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		if cause := context.Cause(ctx); cause != nil {
			return cause
		}
	}
	return err
}
