package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/meridian/fee-engine/engine"
	"github.com/meridian/fee-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine() (*engine.Engine, *store.Memory) {
	mem := store.NewMemory()
	mem.AddInstitution(store.Institution{ID: "inst-1", Name: "Greenhill School", Code: "GHS"})
	mem.AddStudent(store.Student{ID: "stu-1", InstitutionID: "inst-1", Name: "A. Student"})

	eng := engine.New(mem)
	eng.Now = func() time.Time {
		return time.Date(2026, time.June, 15, 10, 30, 0, 0, time.UTC)
	}
	return eng, mem
}

func seedItem(mem *store.Memory, id, owed, paid string) {
	mem.AddFeeItem(engine.FeeItem{
		ID:            engine.FeeItemID(id),
		StudentID:     "stu-1",
		InstitutionID: "inst-1",
		Label:         "Tuition",
		OwedAmount:    money(owed),
		PaidAmount:    money(paid),
		DueDate:       time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		Status:        engine.FeeStatusPending,
	})
}

// =============================================================================
// ALLOCATE PAYMENT
// =============================================================================

func TestAllocatePayment_SingleItem_FullySettled(t *testing.T) {
	// GIVEN: One item owed 1000, nothing paid
	// WHEN: Tendering 1000
	// THEN: The item ends paid, allocation is 1000, receipt issued

	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "1000", "0")

	result, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("1000"),
		Method:     engine.MethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(result.Allocations))
	}
	if !result.Allocations[0].AllocatedAmount.Equal(money("1000")) {
		t.Errorf("expected allocation 1000, got %s", result.Allocations[0].AllocatedAmount)
	}
	if result.Items[0].Status != engine.FeeStatusPaid {
		t.Errorf("expected item paid, got %s", result.Items[0].Status)
	}

	item, _ := mem.FeeItem("fee-1")
	if !item.PaidAmount.Equal(money("1000")) {
		t.Errorf("stored paid amount %s, expected 1000", item.PaidAmount)
	}
	if item.Status != engine.FeeStatusPaid {
		t.Errorf("stored status %s, expected paid", item.Status)
	}
}

func TestAllocatePayment_PartialTender_BothItemsPartial(t *testing.T) {
	// GIVEN: Items with outstanding 600 and 400
	// WHEN: Tendering 500
	// THEN: Shares 300/200, both items end partial

	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "600", "0")
	seedItem(mem, "fee-2", "400", "0")

	result, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1", "fee-2"},
		Tendered:   money("500"),
		Method:     engine.MethodBankTransfer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Allocations[0].AllocatedAmount.Equal(money("300")) {
		t.Errorf("expected 300 for fee-1, got %s", result.Allocations[0].AllocatedAmount)
	}
	if !result.Allocations[1].AllocatedAmount.Equal(money("200")) {
		t.Errorf("expected 200 for fee-2, got %s", result.Allocations[1].AllocatedAmount)
	}
	for _, it := range result.Items {
		if it.Status != engine.FeeStatusPartial {
			t.Errorf("item %s: expected partial, got %s", it.ID, it.Status)
		}
	}
	if !result.Payment.TotalOutstanding.Equal(money("1000")) {
		t.Errorf("expected total outstanding 1000 recorded, got %s", result.Payment.TotalOutstanding)
	}
}

func TestAllocatePayment_ReceiptNumberFormat(t *testing.T) {
	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "1000", "0")

	result, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("10"),
		Method:     engine.MethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Payment.ReceiptNumber != "GHS2026-0001" {
		t.Errorf("expected receipt GHS2026-0001, got %s", result.Payment.ReceiptNumber)
	}

	// Second payment gets the next sequence within the same year.
	result2, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("10"),
		Method:     engine.MethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2.Payment.ReceiptNumber != "GHS2026-0002" {
		t.Errorf("expected receipt GHS2026-0002, got %s", result2.Payment.ReceiptNumber)
	}
	if !strings.HasPrefix(result2.Payment.ReceiptNumber, "GHS2026-") {
		t.Errorf("receipt not scoped to institution+year: %s", result2.Payment.ReceiptNumber)
	}
}

func TestAllocatePayment_TenderAboveOutstanding_NoWrites(t *testing.T) {
	// GIVEN: Total outstanding 1000
	// WHEN: Tendering 1001
	// THEN: AmountExceedsOutstanding, and nothing was persisted

	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "600", "0")
	seedItem(mem, "fee-2", "400", "0")

	_, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1", "fee-2"},
		Tendered:   money("1001"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrAmountExceedsOutstanding) {
		t.Fatalf("expected ErrAmountExceedsOutstanding, got %v", err)
	}

	if mem.PaymentCount() != 0 {
		t.Error("payment persisted despite validation failure")
	}
	item, _ := mem.FeeItem("fee-1")
	if !item.PaidAmount.IsZero() {
		t.Errorf("fee-1 mutated despite validation failure: paid %s", item.PaidAmount)
	}
}

func TestAllocatePayment_UnknownItem_Rejected(t *testing.T) {
	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "600", "0")

	_, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1", "fee-ghost"},
		Tendered:   money("100"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrInvalidFeeItems) {
		t.Fatalf("expected ErrInvalidFeeItems, got %v", err)
	}

	var invalid *engine.InvalidFeeItemsError
	if !errors.As(err, &invalid) {
		t.Fatal("expected structured InvalidFeeItemsError")
	}
	if len(invalid.ItemIDs) != 1 || invalid.ItemIDs[0] != "fee-ghost" {
		t.Errorf("expected fee-ghost reported missing, got %v", invalid.ItemIDs)
	}
}

func TestAllocatePayment_SettledItem_Rejected(t *testing.T) {
	// A fully paid item is not outstanding and cannot be selected.

	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "600", "600")

	_, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("100"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrInvalidFeeItems) {
		t.Fatalf("expected ErrInvalidFeeItems, got %v", err)
	}
}

func TestAllocatePayment_ForeignItem_Rejected(t *testing.T) {
	// Items owned by another student do not resolve.

	eng, mem := newTestEngine()
	mem.AddStudent(store.Student{ID: "stu-2", InstitutionID: "inst-1", Name: "B. Student"})
	mem.AddFeeItem(engine.FeeItem{
		ID:            "fee-other",
		StudentID:     "stu-2",
		InstitutionID: "inst-1",
		OwedAmount:    money("500"),
		PaidAmount:    engine.ZeroMoney(),
		DueDate:       time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		Status:        engine.FeeStatusPending,
	})

	_, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-other"},
		Tendered:   money("100"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrInvalidFeeItems) {
		t.Fatalf("expected ErrInvalidFeeItems, got %v", err)
	}
}

func TestAllocatePayment_UnknownStudent_NotFound(t *testing.T) {
	eng, _ := newTestEngine()

	_, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-ghost",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("100"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestAllocatePayment_BadShape_Rejected(t *testing.T) {
	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "600", "0")

	cases := []engine.AllocationRequest{
		{StudentID: "stu-1", FeeItemIDs: nil, Tendered: money("100")},
		{StudentID: "stu-1", FeeItemIDs: []engine.FeeItemID{"fee-1"}, Tendered: money("0")},
		{StudentID: "stu-1", FeeItemIDs: []engine.FeeItemID{"fee-1"}, Tendered: money("-10")},
		{StudentID: "stu-1", FeeItemIDs: []engine.FeeItemID{"fee-1", "fee-1"}, Tendered: money("100")},
	}

	for i, req := range cases {
		if _, err := eng.AllocatePayment(context.Background(), req); !errors.Is(err, engine.ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestAllocatePayment_SubCentTender_Rejected(t *testing.T) {
	// GIVEN: An item owed 2.01
	// WHEN: Tendering 2.005, which is finer than the currency minor unit
	// THEN: ErrInvalidRequest before any write; rounding at persistence
	//       time would otherwise leave paid == owed with status partial

	eng, mem := newTestEngine()
	seedItem(mem, "fee-1", "2.01", "0")

	_, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("2.005"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	if mem.PaymentCount() != 0 {
		t.Error("payment persisted despite sub-cent tender")
	}
	item, _ := mem.FeeItem("fee-1")
	if !item.PaidAmount.IsZero() {
		t.Errorf("fee-1 mutated despite validation failure: paid %s", item.PaidAmount)
	}

	// Trailing zeros beyond two places carry no extra precision and stay
	// accepted.
	result, err := eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("2.0100"),
		Method:     engine.MethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error for trailing-zero tender: %v", err)
	}
	if result.Items[0].Status != engine.FeeStatusPaid {
		t.Errorf("expected item paid, got %s", result.Items[0].Status)
	}
}

// =============================================================================
// OPTIMISTIC CONCURRENCY
// =============================================================================

// raceStore returns stale fee items from the validation read while the
// backing memory store has already moved on, simulating a concurrent
// payment landing between read and write.
type raceStore struct {
	*store.Memory
	stale []engine.FeeItem
}

func (r *raceStore) OutstandingFeeItems(ctx context.Context, studentID engine.StudentID, itemIDs []engine.FeeItemID) ([]engine.FeeItem, error) {
	return r.stale, nil
}

func TestAllocatePayment_ConcurrentModification_Surfaced(t *testing.T) {
	// GIVEN: Validation observed fee-1 with nothing paid
	// WHEN: Another payment settles 500 before this one writes
	// THEN: The write fails with ErrConcurrentModification and the
	//       racing payment's state is untouched

	_, mem := newTestEngine()
	seedItem(mem, "fee-1", "1000", "0")

	stale, err := mem.OutstandingFeeItems(context.Background(), "stu-1", []engine.FeeItemID{"fee-1"})
	if err != nil {
		t.Fatalf("seed read failed: %v", err)
	}

	// The concurrent payment lands.
	mem.SetPaidAmount("fee-1", money("500"))

	eng := engine.New(&raceStore{Memory: mem, stale: stale})
	eng.Now = func() time.Time { return time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC) }

	_, err = eng.AllocatePayment(context.Background(), engine.AllocationRequest{
		StudentID:  "stu-1",
		FeeItemIDs: []engine.FeeItemID{"fee-1"},
		Tendered:   money("1000"),
		Method:     engine.MethodCash,
	})
	if !errors.Is(err, engine.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if !engine.IsRetryable(err) {
		t.Error("concurrent modification should be retryable")
	}

	if mem.PaymentCount() != 0 {
		t.Error("payment persisted despite write conflict")
	}
	item, _ := mem.FeeItem("fee-1")
	if !item.PaidAmount.Equal(money("500")) {
		t.Errorf("racing payment state clobbered: paid %s", item.PaidAmount)
	}
}

// =============================================================================
// PENALTY PREVIEW
// =============================================================================

func TestPenaltyPreview_OnlyOverdueItemsAssessed(t *testing.T) {
	eng, mem := newTestEngine()
	seedItem(mem, "fee-overdue", "1000", "0") // due 2026-05-01, 45 days before asOf
	mem.AddFeeItem(engine.FeeItem{
		ID:            "fee-future",
		StudentID:     "stu-1",
		InstitutionID: "inst-1",
		OwedAmount:    money("500"),
		PaidAmount:    engine.ZeroMoney(),
		DueDate:       time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
		Status:        engine.FeeStatusPending,
	})
	mem.AddPenaltyRule(engine.PenaltyRule{
		ID:            "rule-1",
		InstitutionID: "inst-1",
		Name:          "Standard interest",
		Type:          engine.PenaltyInterest,
		Percentage:    pct(2),
	})

	asOfDate := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)
	assessments, err := eng.PenaltyPreview(context.Background(), "stu-1", asOfDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(assessments) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(assessments))
	}
	a := assessments[0]
	if a.FeeItemID != "fee-overdue" {
		t.Errorf("expected fee-overdue assessed, got %s", a.FeeItemID)
	}
	if a.DaysOverdue != 45 {
		t.Errorf("expected 45 days overdue, got %d", a.DaysOverdue)
	}
	// 1000 * 0.02 * (45/30) = 30
	if !a.Penalty.Equal(money("30")) {
		t.Errorf("expected penalty 30, got %s", a.Penalty)
	}
}

func TestPenaltyPreview_SkipsMisconfiguredRules(t *testing.T) {
	// A rule with neither amount nor percentage cannot produce a charge;
	// the preview skips it instead of failing the whole read, matching
	// the student fees view.

	eng, mem := newTestEngine()
	seedItem(mem, "fee-overdue", "1000", "0")
	mem.AddPenaltyRule(engine.PenaltyRule{
		ID:            "rule-broken",
		InstitutionID: "inst-1",
		Name:          "No basis",
		Type:          engine.PenaltyLateFee,
	})
	mem.AddPenaltyRule(engine.PenaltyRule{
		ID:            "rule-flat",
		InstitutionID: "inst-1",
		Name:          "Flat late fee",
		Type:          engine.PenaltyLateFee,
		Amount:        moneyPtr("50"),
	})

	asOfDate := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)
	assessments, err := eng.PenaltyPreview(context.Background(), "stu-1", asOfDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(assessments) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(assessments))
	}
	if assessments[0].RuleID != "rule-flat" {
		t.Errorf("expected rule-flat assessed, got %s", assessments[0].RuleID)
	}
	if !assessments[0].Penalty.Equal(money("50")) {
		t.Errorf("expected penalty 50, got %s", assessments[0].Penalty)
	}
}

// =============================================================================
// RECEIPT FORMAT
// =============================================================================

func TestFormatReceiptNumber(t *testing.T) {
	cases := []struct {
		code string
		year int
		seq  int
		want string
	}{
		{"GHS", 2026, 1, "GHS2026-0001"},
		{"GHS", 2026, 42, "GHS2026-0042"},
		{"STM", 2025, 9999, "STM2025-9999"},
		{"STM", 2025, 10000, "STM2025-10000"},
	}
	for _, tc := range cases {
		if got := engine.FormatReceiptNumber(tc.code, tc.year, tc.seq); got != tc.want {
			t.Errorf("FormatReceiptNumber(%s, %d, %d) = %s, want %s", tc.code, tc.year, tc.seq, got, tc.want)
		}
	}
}
