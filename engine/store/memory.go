// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/meridian/fee-engine/engine"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	institutions map[engine.InstitutionID]Institution
	students     map[engine.StudentID]Student
	feeItems     map[engine.FeeItemID]engine.FeeItem
	rules        map[engine.InstitutionID][]engine.PenaltyRule
	payments     map[engine.PaymentID]engine.Payment
	allocations  map[engine.PaymentID][]engine.PaymentAllocation
	sequences    map[sequenceKey]int
}

type Institution struct {
	ID   engine.InstitutionID
	Name string
	Code string
}

type Student struct {
	ID            engine.StudentID
	InstitutionID engine.InstitutionID
	Name          string
}

type sequenceKey struct {
	Code string
	Year int
}

func NewMemory() *Memory {
	return &Memory{
		institutions: make(map[engine.InstitutionID]Institution),
		students:     make(map[engine.StudentID]Student),
		feeItems:     make(map[engine.FeeItemID]engine.FeeItem),
		rules:        make(map[engine.InstitutionID][]engine.PenaltyRule),
		payments:     make(map[engine.PaymentID]engine.Payment),
		allocations:  make(map[engine.PaymentID][]engine.PaymentAllocation),
		sequences:    make(map[sequenceKey]int),
	}
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (m *Memory) AddInstitution(inst Institution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.institutions[inst.ID] = inst
}

func (m *Memory) AddStudent(s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) AddFeeItem(item engine.FeeItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeItems[item.ID] = item
}

func (m *Memory) AddPenaltyRule(rule engine.PenaltyRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.InstitutionID] = append(m.rules[rule.InstitutionID], rule)
}

// SetPaidAmount mutates an item directly, bypassing the engine. Used by
// tests to simulate a concurrent payment landing between read and write.
func (m *Memory) SetPaidAmount(id engine.FeeItemID, paid engine.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.feeItems[id]
	if !ok {
		return
	}
	item.PaidAmount = paid
	item.Status = item.StatusAfterPayment(paid)
	m.feeItems[id] = item
}

// =============================================================================
// READ SIDE
// =============================================================================

func (m *Memory) StudentInstitution(_ context.Context, studentID engine.StudentID) (engine.InstitutionID, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[studentID]
	if !ok {
		return "", "", engine.ErrStudentNotFound
	}
	inst := m.institutions[s.InstitutionID]
	return s.InstitutionID, inst.Code, nil
}

func (m *Memory) OutstandingFeeItems(_ context.Context, studentID engine.StudentID, itemIDs []engine.FeeItemID) ([]engine.FeeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filter map[engine.FeeItemID]bool
	if len(itemIDs) > 0 {
		filter = make(map[engine.FeeItemID]bool, len(itemIDs))
		for _, id := range itemIDs {
			filter[id] = true
		}
	}

	var result []engine.FeeItem
	for _, item := range m.feeItems {
		if item.StudentID != studentID || !item.IsOutstanding() {
			continue
		}
		if filter != nil && !filter[item.ID] {
			continue
		}
		result = append(result, item)
	}

	// Stable order: requested order when filtered, else due date then
	// ID, matching the SQLite store. Allocation order decides which item
	// takes the residual, so the backends must agree.
	if filter != nil {
		ordered := make([]engine.FeeItem, 0, len(result))
		byID := make(map[engine.FeeItemID]engine.FeeItem, len(result))
		for _, it := range result {
			byID[it.ID] = it
		}
		for _, id := range itemIDs {
			if it, ok := byID[id]; ok {
				ordered = append(ordered, it)
			}
		}
		return ordered, nil
	}
	sortFeeItems(result)
	return result, nil
}

func (m *Memory) PenaltyRules(_ context.Context, institutionID engine.InstitutionID) ([]engine.PenaltyRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]engine.PenaltyRule, len(m.rules[institutionID]))
	copy(rules, m.rules[institutionID])
	return rules, nil
}

// Payment returns a stored payment and its allocations.
func (m *Memory) Payment(_ context.Context, id engine.PaymentID) (*engine.Payment, []engine.PaymentAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, nil, engine.ErrPaymentNotFound
	}
	allocs := make([]engine.PaymentAllocation, len(m.allocations[id]))
	copy(allocs, m.allocations[id])
	return &p, allocs, nil
}

// FeeItem returns the current state of an item.
func (m *Memory) FeeItem(id engine.FeeItemID) (engine.FeeItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.feeItems[id]
	return item, ok
}

// PaymentCount reports how many payments have been stored.
func (m *Memory) PaymentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

// =============================================================================
// WRITE SIDE
// =============================================================================

func (m *Memory) NextReceiptSequence(_ context.Context, institutionCode string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := sequenceKey{Code: institutionCode, Year: year}
	m.sequences[k]++
	return m.sequences[k], nil
}

// WritePaymentAtomic verifies every guarded update before mutating
// anything, so a concurrent-modification failure leaves no partial
// state behind.
func (m *Memory) WritePaymentAtomic(_ context.Context, payment engine.Payment, allocations []engine.PaymentAllocation, updates []engine.FeeItemUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		item, ok := m.feeItems[u.ID]
		if !ok || !item.PaidAmount.Equal(u.PrevPaidAmount) {
			return engine.ErrConcurrentModification
		}
	}

	for _, u := range updates {
		item := m.feeItems[u.ID]
		item.PaidAmount = u.NewPaidAmount
		item.Status = u.NewStatus
		m.feeItems[u.ID] = item
	}

	m.payments[payment.ID] = payment
	allocs := make([]engine.PaymentAllocation, len(allocations))
	copy(allocs, allocations)
	m.allocations[payment.ID] = allocs
	return nil
}

func sortFeeItems(items []engine.FeeItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].DueDate.Equal(items[j].DueDate) {
			return items[i].DueDate.Before(items[j].DueDate)
		}
		return items[i].ID < items[j].ID
	})
}
