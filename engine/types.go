/*
Package engine provides the fee reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for reconciling
  student fee payments: splitting a single tender across multiple
  outstanding fee items, keeping per-item paid/outstanding amounts and
  status consistent, and computing late-payment penalties.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal monetary amount (2 decimal places at rest)
  - FeeItem: A single charge line owed by one student
  - PenaltyRule: An institution-configured late-fee policy
  - Payment / PaymentAllocation: One tender and how it was applied

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point penny drift
  2. Immutability: Payment and PaymentAllocation never change after the
     write commits; fee items mutate only through the engine
  3. Type Safety: Strong typing for IDs prevents mixing student/item IDs
  4. Purity: Penalty computation has no side effects

SEE ALSO:
  - allocation.go: Proportional largest-remainder split
  - penalty.go: Late-penalty computation
  - engine.go: The AllocatePayment operation
  - store.go: Storage collaborator contract
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// minorUnitPlaces is the number of decimal places of the currency minor
// unit. All persisted amounts are rounded to this precision.
const minorUnitPlaces = 2

// =============================================================================
// MONEY - Decimal monetary amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

func ZeroMoney() Money {
	return Money{Value: decimal.Zero}
}

// ParseMoney parses a decimal string such as "1250.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustParseMoney parses a decimal string, returning zero on failure.
// Intended for constants and tests.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money                 { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money                 { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money       { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money       { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                        { return Money{Value: m.Value.Neg()} }
func (m Money) Abs() Money                        { return Money{Value: m.Value.Abs()} }
func (m Money) IsZero() bool                      { return m.Value.IsZero() }
func (m Money) IsNegative() bool                  { return m.Value.IsNegative() }
func (m Money) IsPositive() bool                  { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool                { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool          { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool             { return m.Value.LessThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool   { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) String() string                    { return m.Value.StringFixed(minorUnitPlaces) }

// Min returns the smaller of the two amounts.
func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// RoundDown truncates toward zero at the currency minor unit.
func (m Money) RoundDown() Money {
	return Money{Value: m.Value.RoundDown(minorUnitPlaces)}
}

// Round rounds half away from zero at the currency minor unit.
func (m Money) Round() Money {
	return Money{Value: m.Value.Round(minorUnitPlaces)}
}

// HasSubMinorUnits reports whether the amount carries precision finer
// than the currency minor unit, such as "2.005". Amounts like "2.000"
// are fine; only a non-zero sub-minor-unit fraction counts.
func (m Money) HasSubMinorUnits() bool {
	return !m.Value.Equal(m.Value.Truncate(minorUnitPlaces))
}

// MinorUnit is the smallest representable currency step (0.01).
func MinorUnit() Money {
	return Money{Value: decimal.New(1, -minorUnitPlaces)}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FeeItemID string
type StudentID string
type InstitutionID string
type PaymentID string
type PenaltyRuleID string

// =============================================================================
// FEE ITEM - One charge line owed by a student
// =============================================================================

type FeeItemStatus string

const (
	FeeStatusPending FeeItemStatus = "pending" // No payment applied yet
	FeeStatusPartial FeeItemStatus = "partial" // Some payment applied, balance remains
	FeeStatusPaid    FeeItemStatus = "paid"    // Fully covered
	FeeStatusOverdue FeeItemStatus = "overdue" // Unpaid and past due date
)

type FeeItem struct {
	ID            FeeItemID
	StudentID     StudentID
	InstitutionID InstitutionID
	Label         string
	OwedAmount    Money
	PaidAmount    Money
	DueDate       time.Time
	Status        FeeItemStatus
	CreatedAt     time.Time
}

// Outstanding returns owed minus paid. Never negative for a valid item.
func (f FeeItem) Outstanding() Money {
	return f.OwedAmount.Sub(f.PaidAmount)
}

// IsOutstanding reports whether any balance remains on this item.
func (f FeeItem) IsOutstanding() bool {
	return f.Outstanding().IsPositive()
}

// IsOverdue reports whether the item is unpaid and past its due date.
func (f FeeItem) IsOverdue(asOf time.Time) bool {
	return f.IsOutstanding() && asOf.After(f.DueDate)
}

// StatusAfterPayment derives the status implied by a paid amount.
// The overdue status is a read-time presentation concern; the engine
// only ever writes partial or paid.
func (f FeeItem) StatusAfterPayment(paid Money) FeeItemStatus {
	switch {
	case paid.GreaterThanOrEqual(f.OwedAmount):
		return FeeStatusPaid
	case paid.IsPositive():
		return FeeStatusPartial
	default:
		return f.Status
	}
}

// =============================================================================
// PENALTY RULE - Institution late-fee policy
// =============================================================================

type PenaltyType string

const (
	PenaltyLateFee  PenaltyType = "late_fee" // Flat amount or one-off percentage of owed
	PenaltyInterest PenaltyType = "interest" // Percentage of owed prorated per 30-day period
)

type PenaltyRule struct {
	ID              PenaltyRuleID
	InstitutionID   InstitutionID
	Name            string
	Type            PenaltyType
	Amount          *Money           // Fixed penalty, late_fee only
	Percentage      *decimal.Decimal // Percentage of owed amount (e.g. 2 means 2%)
	GracePeriodDays int
	IsCompound      bool
	MaxPenalty      *Money // Optional cap on the computed penalty
	CreatedAt       time.Time
}

// =============================================================================
// PAYMENT - One tender transaction
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCard         PaymentMethod = "card"
)

type Payment struct {
	ID               PaymentID
	StudentID        StudentID
	InstitutionID    InstitutionID
	TotalOutstanding Money // Total outstanding over selected items at tender time
	TenderedAmount   Money
	Method           PaymentMethod
	Status           PaymentStatus
	ReceiptNumber    string
	Notes            string
	CreatedAt        time.Time
}

// PaymentAllocation records how much of one payment applied to one fee item.
type PaymentAllocation struct {
	PaymentID       PaymentID
	FeeItemID       FeeItemID
	AllocatedAmount Money
	StatusAfter     FeeItemStatus
}

// =============================================================================
// PENALTY ASSESSMENT - Read-only penalty preview line
// =============================================================================

type PenaltyAssessment struct {
	FeeItemID   FeeItemID
	RuleID      PenaltyRuleID
	RuleName    string
	DaysOverdue int
	Penalty     Money
}
