/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  Callers branch on sentinels with errors.Is() and extract detail from the
  structured types with errors.As().

ERROR CATEGORIES:
  1. Validation errors - Bad input, caught before any storage access
  2. Business-rule errors - Amount exceeds outstanding, malformed rule
  3. Write-time errors - Optimistic concurrency, storage failures

USAGE:
  if errors.Is(err, engine.ErrConcurrentModification) {
      // Safe to retry the whole operation
  }

  var exceeds *engine.AmountExceedsOutstandingError
  if errors.As(err, &exceeds) {
      fmt.Println(exceeds.Shortfall())
  }

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRequest is returned for malformed input (empty item set,
	// non-positive tender). Detected before any storage access.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidFeeItems is returned when a selected item does not resolve
	// to an outstanding fee item owned by the student.
	ErrInvalidFeeItems = errors.New("invalid fee items")

	// ErrAmountExceedsOutstanding is returned when the tendered amount is
	// greater than the total outstanding over the selected items.
	ErrAmountExceedsOutstanding = errors.New("amount exceeds outstanding")

	// ErrConcurrentModification is returned when the outstanding amount
	// observed at write time differs from what validation assumed.
	// Callers retry the whole operation.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidRule is returned when a penalty rule defines neither a
	// fixed amount nor a percentage.
	ErrInvalidRule = errors.New("invalid penalty rule")

	// ErrAllocationMismatch is returned when the allocated total drifts
	// from the tendered amount by more than one minor currency unit.
	// This is a defect, never absorbed silently.
	ErrAllocationMismatch = errors.New("allocation mismatch")

	// ErrStudentNotFound is returned when the student does not exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrPaymentNotFound is returned when a payment lookup misses.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrStorageFailure wraps collaborator I/O errors. Not retried by the
	// engine itself; surfaced to the caller.
	ErrStorageFailure = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AmountExceedsOutstandingError reports how far a tender overshot.
type AmountExceedsOutstandingError struct {
	StudentID        StudentID
	Tendered         Money
	TotalOutstanding Money
}

func (e *AmountExceedsOutstandingError) Error() string {
	return fmt.Sprintf("tendered %s exceeds total outstanding %s for student %s",
		e.Tendered, e.TotalOutstanding, e.StudentID)
}

func (e *AmountExceedsOutstandingError) Unwrap() error {
	return ErrAmountExceedsOutstanding
}

// Shortfall returns the amount by which the tender exceeded the outstanding.
func (e *AmountExceedsOutstandingError) Shortfall() Money {
	return e.Tendered.Sub(e.TotalOutstanding)
}

// InvalidFeeItemsError lists the item IDs that failed to resolve.
type InvalidFeeItemsError struct {
	StudentID StudentID
	ItemIDs   []FeeItemID
}

func (e *InvalidFeeItemsError) Error() string {
	return fmt.Sprintf("%d fee item(s) not outstanding or not owned by student %s: %v",
		len(e.ItemIDs), e.StudentID, e.ItemIDs)
}

func (e *InvalidFeeItemsError) Unwrap() error {
	return ErrInvalidFeeItems
}

// AllocationMismatchError reports a conservation failure.
type AllocationMismatchError struct {
	Tendered  Money
	Allocated Money
}

func (e *AllocationMismatchError) Error() string {
	return fmt.Sprintf("allocated %s does not conserve tendered %s", e.Allocated, e.Tendered)
}

func (e *AllocationMismatchError) Unwrap() error {
	return ErrAllocationMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidFeeItems) ||
		errors.Is(err, ErrAmountExceedsOutstanding) ||
		errors.Is(err, ErrInvalidRule)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
