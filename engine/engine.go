/*
engine.go - The AllocatePayment operation

PURPOSE:
  Ties the pure allocation and penalty algorithms to the storage
  collaborator. One call of AllocatePayment performs the whole
  request-validate-allocate-persist cycle for a single tender.

REQUEST FLOW:
  1. Shape validation (non-empty item set, positive tender)
  2. Resolve the student to an institution (receipt scope)
  3. Read outstanding items; reject unknown/foreign/settled item IDs
  4. Reject tenders above the total outstanding
  5. Proportional split (allocation.go)
  6. Allocate the next receipt number for institution+year
  7. One atomic write: item updates + payment + allocations

  No side effects happen before step 6; the storage layer re-checks the
  paid amounts inside the write and fails with ErrConcurrentModification
  if another payment raced this one.

SEE ALSO:
  - allocation.go: The split algorithm
  - store.go: Collaborator contract
  - api/handlers.go: HTTP entry point
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Engine reconciles payments against outstanding fee items.
type Engine struct {
	store StudentStore

	// Now is the clock used for payment timestamps and penalty
	// evaluation. Overridable in tests.
	Now func() time.Time
}

// New creates an engine backed by the given store.
func New(store StudentStore) *Engine {
	return &Engine{store: store, Now: time.Now}
}

// AllocationRequest is the input to AllocatePayment.
type AllocationRequest struct {
	StudentID  StudentID
	FeeItemIDs []FeeItemID
	Tendered   Money
	Method     PaymentMethod
	Notes      string
}

// AllocationResult is what AllocatePayment returns to the caller once
// the write has committed.
type AllocationResult struct {
	Payment     Payment
	Allocations []PaymentAllocation
	Items       []FeeItem // Post-allocation state of the selected items
}

// AllocatePayment validates the request, splits the tender across the
// selected fee items, and persists the outcome atomically.
func (e *Engine) AllocatePayment(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if len(req.FeeItemIDs) == 0 {
		return nil, fmt.Errorf("%w: no fee items selected", ErrInvalidRequest)
	}
	if !req.Tendered.IsPositive() {
		return nil, fmt.Errorf("%w: tendered amount must be positive", ErrInvalidRequest)
	}
	// Sub-cent tenders would survive the split unrounded and then round
	// at persistence time, leaving paid == owed with status partial.
	if req.Tendered.HasSubMinorUnits() {
		return nil, fmt.Errorf("%w: tendered amount is finer than the minor currency unit", ErrInvalidRequest)
	}
	if seen := duplicateID(req.FeeItemIDs); seen != "" {
		return nil, fmt.Errorf("%w: duplicate fee item %s", ErrInvalidRequest, seen)
	}

	institutionID, institutionCode, err := e.store.StudentInstitution(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	items, err := e.store.OutstandingFeeItems(ctx, req.StudentID, req.FeeItemIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if missing := missingIDs(req.FeeItemIDs, items); len(missing) > 0 {
		return nil, &InvalidFeeItemsError{StudentID: req.StudentID, ItemIDs: missing}
	}

	total := ZeroMoney()
	for _, it := range items {
		total = total.Add(it.Outstanding())
	}
	if req.Tendered.GreaterThan(total) {
		return nil, &AmountExceedsOutstandingError{
			StudentID:        req.StudentID,
			Tendered:         req.Tendered,
			TotalOutstanding: total,
		}
	}

	shares, err := SplitProportional(req.Tendered, items)
	if err != nil {
		return nil, err
	}

	now := e.Now().UTC()
	seq, err := e.store.NextReceiptSequence(ctx, institutionCode, now.Year())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	payment := Payment{
		ID:               PaymentID(uuid.NewString()),
		StudentID:        req.StudentID,
		InstitutionID:    institutionID,
		TotalOutstanding: total,
		TenderedAmount:   req.Tendered,
		Method:           req.Method,
		Status:           PaymentCompleted,
		ReceiptNumber:    FormatReceiptNumber(institutionCode, now.Year(), seq),
		Notes:            req.Notes,
		CreatedAt:        now,
	}

	allocations := make([]PaymentAllocation, 0, len(items))
	updates := make([]FeeItemUpdate, 0, len(items))
	updated := make([]FeeItem, len(items))

	for i, it := range items {
		newPaid := it.PaidAmount.Add(shares[i])
		newStatus := it.StatusAfterPayment(newPaid)

		allocations = append(allocations, PaymentAllocation{
			PaymentID:       payment.ID,
			FeeItemID:       it.ID,
			AllocatedAmount: shares[i],
			StatusAfter:     newStatus,
		})
		updates = append(updates, FeeItemUpdate{
			ID:             it.ID,
			PrevPaidAmount: it.PaidAmount,
			NewPaidAmount:  newPaid,
			NewStatus:      newStatus,
		})

		updated[i] = it
		updated[i].PaidAmount = newPaid
		updated[i].Status = newStatus
	}

	if err := e.store.WritePaymentAtomic(ctx, payment, allocations, updates); err != nil {
		return nil, err
	}

	return &AllocationResult{Payment: payment, Allocations: allocations, Items: updated}, nil
}

// PenaltyPreview reports the penalty each of the student's overdue items
// would accrue under every configured rule as of the given date. Pure
// read: nothing is written and nothing is added to balances.
func (e *Engine) PenaltyPreview(ctx context.Context, studentID StudentID, asOf time.Time) ([]PenaltyAssessment, error) {
	institutionID, _, err := e.store.StudentInstitution(ctx, studentID)
	if err != nil {
		return nil, err
	}

	items, err := e.store.OutstandingFeeItems(ctx, studentID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	rules, err := e.store.PenaltyRules(ctx, institutionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	assessments := make([]PenaltyAssessment, 0)
	for _, it := range items {
		for _, rule := range rules {
			days := DaysOverdue(it.DueDate, rule.GracePeriodDays, asOf)
			if days == 0 {
				continue
			}
			penalty, err := ComputePenalty(it, rule, asOf)
			if err != nil {
				continue // Misconfigured rule; skip rather than fail the read
			}
			assessments = append(assessments, PenaltyAssessment{
				FeeItemID:   it.ID,
				RuleID:      rule.ID,
				RuleName:    rule.Name,
				DaysOverdue: days,
				Penalty:     penalty,
			})
		}
	}
	return assessments, nil
}

func duplicateID(ids []FeeItemID) FeeItemID {
	seen := make(map[FeeItemID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id
		}
		seen[id] = true
	}
	return ""
}

func missingIDs(requested []FeeItemID, found []FeeItem) []FeeItemID {
	have := make(map[FeeItemID]bool, len(found))
	for _, it := range found {
		have[it.ID] = true
	}
	var missing []FeeItemID
	for _, id := range requested {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
