package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/meridian/fee-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) engine.Money {
	return engine.MustParseMoney(s)
}

func outstandingItem(id string, owed, paid string) engine.FeeItem {
	return engine.FeeItem{
		ID:         engine.FeeItemID(id),
		StudentID:  "stu-1",
		OwedAmount: money(owed),
		PaidAmount: money(paid),
		DueDate:    time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Status:     engine.FeeStatusPending,
	}
}

func sum(shares []engine.Money) engine.Money {
	total := engine.ZeroMoney()
	for _, s := range shares {
		total = total.Add(s)
	}
	return total
}

// =============================================================================
// PROPORTIONAL SPLIT
// =============================================================================

func TestSplitProportional_SingleItem_FullTender(t *testing.T) {
	// GIVEN: One item owed 1000 with nothing paid
	// WHEN: Tendering exactly 1000
	// THEN: The full tender lands on that item

	items := []engine.FeeItem{outstandingItem("fee-1", "1000", "0")}

	shares, err := engine.SplitProportional(money("1000"), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shares[0].Equal(money("1000")) {
		t.Errorf("expected 1000 allocated, got %s", shares[0])
	}
}

func TestSplitProportional_TwoItems_ProportionalShares(t *testing.T) {
	// GIVEN: Outstanding balances of 600 and 400
	// WHEN: Tendering 500
	// THEN: Shares are 300 and 200

	items := []engine.FeeItem{
		outstandingItem("fee-1", "600", "0"),
		outstandingItem("fee-2", "400", "0"),
	}

	shares, err := engine.SplitProportional(money("500"), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shares[0].Equal(money("300")) {
		t.Errorf("expected 300 for first item, got %s", shares[0])
	}
	if !shares[1].Equal(money("200")) {
		t.Errorf("expected 200 for second item, got %s", shares[1])
	}
}

func TestSplitProportional_Conservation(t *testing.T) {
	// Conservation must hold penny-exact for awkward ratios where
	// floor rounding truncates every share.

	cases := []struct {
		name     string
		items    []engine.FeeItem
		tendered string
	}{
		{
			name: "thirds",
			items: []engine.FeeItem{
				outstandingItem("a", "33.33", "0"),
				outstandingItem("b", "33.33", "0"),
				outstandingItem("c", "33.34", "0"),
			},
			tendered: "50",
		},
		{
			name: "sevenths",
			items: []engine.FeeItem{
				outstandingItem("a", "100", "0"),
				outstandingItem("b", "100", "0"),
				outstandingItem("c", "100", "0"),
				outstandingItem("d", "100", "0"),
				outstandingItem("e", "100", "0"),
				outstandingItem("f", "100", "0"),
				outstandingItem("g", "100", "0"),
			},
			tendered: "1.00",
		},
		{
			name: "partial history",
			items: []engine.FeeItem{
				outstandingItem("a", "250", "124.99"),
				outstandingItem("b", "99.95", "0.05"),
				outstandingItem("c", "1200", "1100"),
			},
			tendered: "123.45",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shares, err := engine.SplitProportional(money(tc.tendered), tc.items)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !sum(shares).Equal(money(tc.tendered)) {
				t.Errorf("conservation violated: allocated %s, tendered %s", sum(shares), tc.tendered)
			}
			for i, s := range shares {
				if s.GreaterThan(tc.items[i].Outstanding()) {
					t.Errorf("item %d allocated %s beyond outstanding %s", i, s, tc.items[i].Outstanding())
				}
				if s.IsNegative() {
					t.Errorf("item %d got negative share %s", i, s)
				}
			}
		})
	}
}

func TestSplitProportional_ResidualSpillsBackwards(t *testing.T) {
	// GIVEN: A tiny last item whose outstanding cannot absorb the full
	//        truncation residual
	// WHEN: Splitting a tender one cent under the total
	// THEN: The stranded cent lands on an earlier item with capacity and
	//       conservation still holds

	items := []engine.FeeItem{
		outstandingItem("a", "1.03", "0"),
		outstandingItem("b", "1.03", "0"),
		outstandingItem("c", "0.01", "0"),
	}

	shares, err := engine.SplitProportional(money("2.06"), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum(shares).Equal(money("2.06")) {
		t.Errorf("conservation violated: allocated %s", sum(shares))
	}
	for i, s := range shares {
		if s.GreaterThan(items[i].Outstanding()) {
			t.Errorf("item %d allocated %s beyond outstanding %s", i, s, items[i].Outstanding())
		}
	}
}

func TestSplitProportional_ExactPayoff_EveryItemCovered(t *testing.T) {
	// GIVEN: Tender equal to the total outstanding
	// THEN: Every item receives exactly its outstanding balance

	items := []engine.FeeItem{
		outstandingItem("a", "600", "100"),
		outstandingItem("b", "400", "0"),
		outstandingItem("c", "33.33", "0"),
	}

	shares, err := engine.SplitProportional(money("933.33"), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range shares {
		if !s.Equal(items[i].Outstanding()) {
			t.Errorf("item %d expected full payoff %s, got %s", i, items[i].Outstanding(), s)
		}
	}
}

func TestSplitProportional_TenderAboveOutstanding_Rejected(t *testing.T) {
	items := []engine.FeeItem{outstandingItem("fee-1", "1000", "0")}

	_, err := engine.SplitProportional(money("1001"), items)
	if !errors.Is(err, engine.ErrAmountExceedsOutstanding) {
		t.Fatalf("expected ErrAmountExceedsOutstanding, got %v", err)
	}

	var exceeds *engine.AmountExceedsOutstandingError
	if !errors.As(err, &exceeds) {
		t.Fatal("expected structured AmountExceedsOutstandingError")
	}
	if !exceeds.Shortfall().Equal(money("1")) {
		t.Errorf("expected shortfall 1, got %s", exceeds.Shortfall())
	}
}

func TestSplitProportional_BadInput_Rejected(t *testing.T) {
	items := []engine.FeeItem{outstandingItem("fee-1", "100", "0")}

	if _, err := engine.SplitProportional(money("10"), nil); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("empty item set: expected ErrInvalidRequest, got %v", err)
	}
	if _, err := engine.SplitProportional(money("0"), items); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("zero tender: expected ErrInvalidRequest, got %v", err)
	}
	if _, err := engine.SplitProportional(money("-5"), items); !errors.Is(err, engine.ErrInvalidRequest) {
		t.Errorf("negative tender: expected ErrInvalidRequest, got %v", err)
	}
}
