/*
errors.go - Centralized error taxonomy for the core engine

PURPOSE:
  All engine error kinds in one place. Callers dispatch on the sentinel
  with errors.Is, or pull figures out of the structured types with
  errors.As. Amount-carrying errors always include both the requested and
  the available figure so the caller can render them without re-querying.

ERROR CATEGORIES:
  1. Not found       - missing entity, or entity outside the caller's org
  2. Permission      - role lacks the capability
  3. State machine   - illegal status transition
  4. Budget          - ceiling or headroom violation
  5. Conflict        - uniqueness violation or held lock
  6. Validation      - structurally invalid input

SEE ALSO:
  - workflow.go, realization.go: raise these errors
  - api/handlers.go: maps them to HTTP statuses
*/
package npd

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist, or
	// exists in another organization. The two cases are indistinguishable
	// so that cross-tenant existence never leaks.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the actor's role lacks the
	// capability required by the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStateTransition is returned when a status change is not a legal
	// edge from the document's current state.
	ErrStateTransition = errors.New("illegal state transition")

	// ErrBudgetExceeded is returned when a proposed amount would violate a
	// ledger invariant (ceiling, headroom, or SP2D cumulative cap).
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrConflict is returned on uniqueness violations and held locks.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for structurally invalid input.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies what was looked up, not where it went.
type NotFoundError struct {
	Entity string // "npd", "line", "account", "sp2d"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PermissionError names the missing capability.
type PermissionError struct {
	Role       string
	Capability string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %s lacks capability %s", e.Role, e.Capability)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// StateTransitionError names the current state and the attempted target.
type StateTransitionError struct {
	DocumentID DocumentID
	From       Status
	To         Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("npd %s: cannot transition from %s to %s", e.DocumentID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrStateTransition }

// BudgetExceededError carries the attempted and the available figure.
type BudgetExceededError struct {
	AccountKode string
	Requested   Amount
	Available   Amount
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded on %s: requested %s, available %s",
		e.AccountKode, e.Requested.Value, e.Available.Value)
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// ConflictError covers duplicate numbers and held locks.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ValidationError describes what was structurally wrong with the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
