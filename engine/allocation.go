/*
allocation.go - Proportional payment allocation

PURPOSE:
  Splits a single tendered amount across a set of outstanding fee items,
  proportionally to each item's outstanding balance, with a
  largest-remainder residual assignment so the split conserves the tender
  penny-exact.

ALGORITHM:
  1. rawShare_i = tendered * outstanding_i / totalOutstanding
  2. For every item but the last (stable input order), allocate
     min(outstanding_i, floor(rawShare_i)) at 2 decimal places
  3. Assign the floor-truncation residual to the last item, capped at its
     outstanding amount; spill any capped remainder backwards into items
     that still have capacity
  4. Verify sum(allocated) == tendered; a discrepancy beyond one minor
     unit fails with ErrAllocationMismatch

INVARIANTS:
  - Conservation: sum(allocated) == tendered whenever tendered <= total
  - Non-exceedance: allocated_i <= outstanding_i for every item

SEE ALSO:
  - engine.go: Uses this split inside AllocatePayment
*/
package engine

// SplitProportional allocates tendered across items proportionally to
// their outstanding balances. Items must all be outstanding and the
// tender must not exceed the total outstanding.
//
// The returned slice is index-aligned with items.
func SplitProportional(tendered Money, items []FeeItem) ([]Money, error) {
	if len(items) == 0 {
		return nil, ErrInvalidRequest
	}
	if !tendered.IsPositive() {
		return nil, ErrInvalidRequest
	}

	total := ZeroMoney()
	for _, it := range items {
		total = total.Add(it.Outstanding())
	}
	if tendered.GreaterThan(total) {
		return nil, &AmountExceedsOutstandingError{
			Tendered:         tendered,
			TotalOutstanding: total,
		}
	}

	shares := make([]Money, len(items))
	allocated := ZeroMoney()

	// Floor-round every share but the last; the last item takes the
	// truncation residual.
	for i, it := range items {
		if i == len(items)-1 {
			break
		}
		raw := tendered.Mul(it.Outstanding().Value).Div(total.Value)
		share := raw.RoundDown().Min(it.Outstanding())
		shares[i] = share
		allocated = allocated.Add(share)
	}

	last := len(items) - 1
	residual := tendered.Sub(allocated)
	shares[last] = residual.Min(items[last].Outstanding())
	allocated = allocated.Add(shares[last])

	// Floor truncation can leave one cent per preceding item stranded
	// beyond the last item's capacity. Spill it backwards into items
	// with room left.
	leftover := tendered.Sub(allocated)
	for i := last - 1; i >= 0 && leftover.IsPositive(); i-- {
		capacity := items[i].Outstanding().Sub(shares[i])
		if !capacity.IsPositive() {
			continue
		}
		extra := leftover.Min(capacity)
		shares[i] = shares[i].Add(extra)
		allocated = allocated.Add(extra)
		leftover = leftover.Sub(extra)
	}

	if !allocated.Equal(tendered) {
		return nil, &AllocationMismatchError{Tendered: tendered, Allocated: allocated}
	}
	return shares, nil
}
