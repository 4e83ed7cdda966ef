// Package refund computes the refund owed when a booking is cancelled.
// The calculation is pure: no clock, no I/O, no mutation — the caller
// supplies the hours remaining until the event, which keeps the tiers
// independently testable without a payment gateway.
package refund

import (
	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
)

// Tier grants a fraction of the paid amount when at least MinHours
// remain before the event.
type Tier struct {
	MinHours float64
	Fraction decimal.Decimal
}

// Schedule maps each cancellation policy to its tiers, ordered from the
// most generous (largest MinHours) down.  Anything below the last tier
// refunds nothing.
type Schedule map[model.CancellationPolicy][]Tier

// DefaultSchedule returns the published product policy:
//
//	FLEXIBLE  ≥24h: 100%            <24h: 0%
//	MODERATE  ≥7d: 100%   24h..7d: 50%   <24h: 0%
//	STRICT    ≥14d: 100%            <14d: 0%
//
// The values are kept here, in one place, so a policy revision is a
// data change.
func DefaultSchedule() Schedule {
	full := decimal.NewFromInt(1)
	half := decimal.NewFromFloat(0.5)
	return Schedule{
		model.PolicyFlexible: {
			{MinHours: 24, Fraction: full},
		},
		model.PolicyModerate: {
			{MinHours: 168, Fraction: full},
			{MinHours: 24, Fraction: half},
		},
		model.PolicyStrict: {
			{MinHours: 336, Fraction: full},
		},
	}
}

// Calculate returns the refund for totalAmount under the schedule.  The
// result is rounded to 2 decimal places and clamped to [0, totalAmount].
func (s Schedule) Calculate(totalAmount decimal.Decimal, hoursUntilEvent float64, policy model.CancellationPolicy) decimal.Decimal {
	zero := decimal.Zero
	if totalAmount.LessThanOrEqual(zero) {
		return zero
	}
	tiers, ok := s[policy]
	if !ok {
		return zero
	}
	for _, tier := range tiers {
		if hoursUntilEvent >= tier.MinHours {
			amount := totalAmount.Mul(tier.Fraction).Round(2)
			if amount.LessThan(zero) {
				return zero
			}
			if amount.GreaterThan(totalAmount) {
				return totalAmount
			}
			return amount
		}
	}
	return zero
}

// Calculate applies the default schedule.
func Calculate(totalAmount decimal.Decimal, hoursUntilEvent float64, policy model.CancellationPolicy) decimal.Decimal {
	return DefaultSchedule().Calculate(totalAmount, hoursUntilEvent, policy)
}
