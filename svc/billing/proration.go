package billing

import (
	"math"
	"time"
)

// ChangeType classifies a plan or cycle change.
type ChangeType string

const (
	ChangeSame        ChangeType = "same"
	ChangeUpgrade     ChangeType = "upgrade"
	ChangeDowngrade   ChangeType = "downgrade"
	ChangeCycleChange ChangeType = "cycle_change"
)

// MinChargeAmount is the floor below which a computed proration delta is not
// worth a gateway charge, in currency minor units.
const MinChargeAmount int64 = 100

// Proration is the outcome of a mid-period plan or cycle change.
type Proration struct {
	ChangeType    ChangeType
	DaysRemaining int
	// ProratedAmount is what to charge now, in currency minor units. Zero for
	// downgrades and same-plan requests.
	ProratedAmount int64
	// NewPlanAmount is the full price of the new plan+cycle, charged from the
	// next period onward.
	NewPlanAmount   int64
	RequiresPayment bool
	// EffectiveDate is when the change takes effect: immediately for upgrades
	// and cycle changes, at period end for downgrades.
	EffectiveDate time.Time
}

// CalculateProration computes the monetary delta of switching from the
// current plan+cycle to a new one mid-period. See CalculateProrationAt.
func CalculateProration(current Plan, currentCycle BillingCycle, next Plan, nextCycle BillingCycle, currentPeriodEnd time.Time) Proration {
	return CalculateProrationAt(current, currentCycle, next, nextCycle, currentPeriodEnd, time.Now().UTC())
}

// CalculateProrationAt is CalculateProration with an explicit clock.
//
// Upgrades and cycle changes are charged immediately for the difference
// between the two plans' per-day rates over the days remaining in the current
// period. Downgrades charge nothing now and take effect at period end; the
// unused portion of the higher tier is not refunded.
func CalculateProrationAt(current Plan, currentCycle BillingCycle, next Plan, nextCycle BillingCycle, currentPeriodEnd time.Time, now time.Time) Proration {
	p := Proration{
		ChangeType:    classifyChange(current, currentCycle, next, nextCycle),
		DaysRemaining: daysRemaining(currentPeriodEnd, now),
		EffectiveDate: now,
	}
	if price, ok := next.Price(nextCycle); ok {
		p.NewPlanAmount = price
	}

	switch p.ChangeType {
	case ChangeUpgrade, ChangeCycleChange:
		delta := (next.PerDayRate(nextCycle) - current.PerDayRate(currentCycle)) * int64(p.DaysRemaining)
		if delta < 0 {
			delta = 0
		}
		p.ProratedAmount = delta
		p.RequiresPayment = delta >= MinChargeAmount
	case ChangeDowngrade:
		p.EffectiveDate = currentPeriodEnd
	}

	return p
}

func classifyChange(current Plan, currentCycle BillingCycle, next Plan, nextCycle BillingCycle) ChangeType {
	switch {
	case next.Rank > current.Rank:
		return ChangeUpgrade
	case next.Rank < current.Rank:
		return ChangeDowngrade
	case nextCycle != currentCycle:
		return ChangeCycleChange
	default:
		return ChangeSame
	}
}

// daysRemaining counts the days between now and periodEnd, rounding partial
// days up and flooring at zero.
func daysRemaining(periodEnd, now time.Time) int {
	hours := periodEnd.Sub(now).Hours()
	if hours <= 0 {
		return 0
	}
	return int(math.Ceil(hours / 24))
}
