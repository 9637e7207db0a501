package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/meridian/fee-engine/engine"
	"github.com/meridian/fee-engine/engine/store"
)

func seedStudent(mem *store.Memory) {
	mem.AddInstitution(store.Institution{ID: "inst-1", Name: "Greenhill School", Code: "GHS"})
	mem.AddStudent(store.Student{ID: "stu-1", InstitutionID: "inst-1", Name: "A. Student"})
}

func addItem(mem *store.Memory, id string, due time.Time) {
	mem.AddFeeItem(engine.FeeItem{
		ID:            engine.FeeItemID(id),
		StudentID:     "stu-1",
		InstitutionID: "inst-1",
		Label:         "Tuition",
		OwedAmount:    engine.MustParseMoney("100"),
		PaidAmount:    engine.ZeroMoney(),
		DueDate:       due,
		Status:        engine.FeeStatusPending,
	})
}

func TestOutstandingFeeItems_UnfilteredOrderedByDueDateThenID(t *testing.T) {
	// Unfiltered reads must order like the SQLite store (due date, then
	// ID): allocation order decides which item takes the residual, so
	// the backends have to agree.

	mem := store.NewMemory()
	seedStudent(mem)

	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	addItem(mem, "fee-a", may)   // later due date, earliest ID
	addItem(mem, "fee-c", march) // earliest due date
	addItem(mem, "fee-b", may)   // ties with fee-a on due date

	items, err := mem.OutstandingFeeItems(context.Background(), "stu-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []engine.FeeItemID{"fee-c", "fee-a", "fee-b"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, items[i].ID)
		}
	}
}
