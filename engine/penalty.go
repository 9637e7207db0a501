/*
penalty.go - Late-payment penalty computation

PURPOSE:
  Computes the penalty an overdue fee item accrues under an institution
  penalty rule. This is a pure function: callers decide whether and how
  the penalty is added to the item's outstanding balance.

RULE SEMANTICS:
  late_fee + fixed amount:  flat penalty, independent of days overdue
  late_fee + percentage:    owed * percentage / 100
  interest + percentage:    owed * percentage / 100 * (daysOverdue / 30)

  Compounding multiplies the base penalty by a further daysOverdue/30
  factor. For interest rules this grows quadratically with days overdue.
  That matches the deployed billing behavior and is preserved as is;
  changing it would silently change financial outcomes.

  A max penalty, when set, clamps the result.

SEE ALSO:
  - engine.go: PenaltyPreview applies rules to a student's overdue items
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	thirtyDays = decimal.NewFromInt(30)
)

// ComputePenalty returns the penalty item accrues under rule as of the
// given date. The result is rounded to the currency minor unit and is
// never negative. Within the grace period the penalty is zero for every
// rule type.
func ComputePenalty(item FeeItem, rule PenaltyRule, asOf time.Time) (Money, error) {
	days := DaysOverdue(item.DueDate, rule.GracePeriodDays, asOf)
	if days == 0 {
		return ZeroMoney(), nil
	}

	periods := decimal.NewFromInt(int64(days)).Div(thirtyDays)

	var penalty Money
	switch rule.Type {
	case PenaltyLateFee:
		switch {
		case rule.Amount != nil:
			penalty = *rule.Amount
		case rule.Percentage != nil:
			penalty = item.OwedAmount.Mul(*rule.Percentage).Div(hundred)
		default:
			return ZeroMoney(), ErrInvalidRule
		}
	case PenaltyInterest:
		if rule.Percentage == nil {
			return ZeroMoney(), ErrInvalidRule
		}
		penalty = item.OwedAmount.Mul(*rule.Percentage).Div(hundred).Mul(periods)
	default:
		return ZeroMoney(), ErrInvalidRule
	}

	if rule.IsCompound {
		penalty = penalty.Mul(periods)
	}

	if rule.MaxPenalty != nil && penalty.GreaterThan(*rule.MaxPenalty) {
		penalty = *rule.MaxPenalty
	}

	penalty = penalty.Round()
	if penalty.IsNegative() {
		return ZeroMoney(), nil
	}
	return penalty, nil
}

// DaysOverdue returns the whole days past due date plus grace period,
// never negative. Both times are truncated to calendar days in UTC.
func DaysOverdue(dueDate time.Time, gracePeriodDays int, asOf time.Time) int {
	due := truncateToDay(dueDate)
	at := truncateToDay(asOf)

	days := int(at.Sub(due).Hours()/24) - gracePeriodDays
	if days < 0 {
		return 0
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
