/*
store.go - Storage collaborator contract

PURPOSE:
  Defines the interface between the reconciliation engine and whatever
  persists fee state. The engine performs no I/O of its own; everything
  it needs from the excluded persistence layer is captured here, which
  keeps the engine testable against an in-memory fake.

ATOMICITY CONTRACT:
  WritePaymentAtomic applies the fee-item updates, the payment, and the
  allocation rows as a single unit of work. Implementations that cannot
  wrap the writes in one transaction must apply item updates first and
  only commit the payment after all allocations succeed, cleaning up the
  partially created payment on failure. A payment must never exist
  without its allocations.

OPTIMISTIC CONCURRENCY:
  Each FeeItemUpdate carries the paid amount observed when the engine
  validated the request. An implementation must reject the whole write
  with ErrConcurrentModification if any item's stored paid amount no
  longer matches.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite store
  - engine/store (memory): In-memory store for tests and development

SEE ALSO:
  - engine.go: The only caller of WritePaymentAtomic
*/
package engine

import "context"

// FeeItemUpdate is the optimistic-concurrency guarded mutation of one
// fee item produced by an allocation.
type FeeItemUpdate struct {
	ID FeeItemID

	// PrevPaidAmount is the paid amount read during validation. The write
	// must fail with ErrConcurrentModification if it no longer matches.
	PrevPaidAmount Money

	NewPaidAmount Money
	NewStatus     FeeItemStatus
}

// Store is the persistence collaborator the engine depends on.
type Store interface {
	// OutstandingFeeItems returns the outstanding fee items owned by the
	// student. With a non-empty itemIDs filter only matching items are
	// returned; IDs that do not resolve to an outstanding item owned by
	// the student are simply absent from the result.
	OutstandingFeeItems(ctx context.Context, studentID StudentID, itemIDs []FeeItemID) ([]FeeItem, error)

	// PenaltyRules returns the penalty rules configured for an institution.
	PenaltyRules(ctx context.Context, institutionID InstitutionID) ([]PenaltyRule, error)

	// NextReceiptSequence atomically increments and returns the receipt
	// counter for an institution+year. Two concurrent payments must never
	// observe the same value.
	NextReceiptSequence(ctx context.Context, institutionCode string, year int) (int, error)

	// WritePaymentAtomic persists the payment, its allocations, and the
	// guarded fee-item updates as one atomic unit of work.
	WritePaymentAtomic(ctx context.Context, payment Payment, allocations []PaymentAllocation, updates []FeeItemUpdate) error
}

// StudentStore extends Store with the student existence check the engine
// performs before touching fee items.
type StudentStore interface {
	Store

	// StudentInstitution resolves a student to their institution ID and
	// code. Returns ErrStudentNotFound when the student does not exist.
	StudentInstitution(ctx context.Context, studentID StudentID) (InstitutionID, string, error)
}
