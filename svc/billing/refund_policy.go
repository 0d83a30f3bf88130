package billing

import (
	"fmt"
	"time"
)

const (
	// RefundWindowDays is how long after payment a refund may be requested.
	RefundWindowDays = 7
	// MinRefundAmount is the smallest refund worth a gateway round trip, in
	// currency minor units.
	MinRefundAmount int64 = 100
	// HighUsagePercentage marks refunds where most of the purchase is already
	// consumed; advisory only, never blocking.
	HighUsagePercentage = 90.0
)

// RefundType classifies how a refund amount was determined.
type RefundType string

const (
	RefundFull     RefundType = "full"
	RefundPartial  RefundType = "partial"
	RefundProrated RefundType = "prorated"
)

// RefundPolicyResult is the outcome of a refund eligibility check.
type RefundPolicyResult struct {
	Allowed bool
	// Reason explains a rejection; empty when Allowed.
	Reason string
	// Restrictions are advisory notes that do not block the refund.
	Restrictions []string
}

// ProratedRefund is a computed refundable amount with its share of the
// original purchase.
type ProratedRefund struct {
	RefundableAmount int64
	// RefundPercentage is the unused share of the purchase, 0..100.
	RefundPercentage float64
}

// CheckRefundPolicy decides whether a refund request is admissible. See
// CheckRefundPolicyAt.
func CheckRefundPolicy(paymentDate time.Time, status PaymentStatus, requestedAmount, maxRefundable int64, usagePercentage float64) RefundPolicyResult {
	return CheckRefundPolicyAt(paymentDate, status, requestedAmount, maxRefundable, usagePercentage, time.Now().UTC())
}

// CheckRefundPolicyAt is CheckRefundPolicy with an explicit clock.
//
// Rejections are checked in a fixed order: already-refunded payments first,
// then non-refundable statuses, the eligibility window, the minimum amount,
// and finally the refundable ceiling. High usage is recorded as a restriction
// but never rejects.
func CheckRefundPolicyAt(paymentDate time.Time, status PaymentStatus, requestedAmount, maxRefundable int64, usagePercentage float64, now time.Time) RefundPolicyResult {
	switch {
	case status == PaymentRefunded:
		return RefundPolicyResult{Reason: "payment has already been fully refunded"}
	case status != PaymentCompleted && status != PaymentPartialRefunded:
		return RefundPolicyResult{Reason: fmt.Sprintf("payment in status %q is not refundable", status)}
	case now.Sub(paymentDate) > RefundWindowDays*24*time.Hour:
		return RefundPolicyResult{Reason: fmt.Sprintf("payment is outside the %d-day refund window", RefundWindowDays)}
	case requestedAmount < MinRefundAmount:
		return RefundPolicyResult{Reason: fmt.Sprintf("requested amount is below the minimum refund of %d", MinRefundAmount)}
	case requestedAmount > maxRefundable:
		return RefundPolicyResult{Reason: fmt.Sprintf("requested amount exceeds the refundable maximum of %d", maxRefundable)}
	}

	result := RefundPolicyResult{Allowed: true}
	if usagePercentage > HighUsagePercentage {
		result.Restrictions = append(result.Restrictions,
			fmt.Sprintf("usage is at %.0f%% of the purchase", usagePercentage))
	}
	return result
}

// CalculateProratedRefund returns the credit-proportional refundable amount
// of a credit purchase: the unused share of the original price, less what was
// already refunded, floored at zero.
func CalculateProratedRefund(originalAmount, originalCredits, usedCredits, alreadyRefunded int64) ProratedRefund {
	if originalCredits <= 0 || usedCredits >= originalCredits {
		return ProratedRefund{}
	}

	remaining := originalCredits - usedCredits
	refundable := originalAmount*remaining/originalCredits - alreadyRefunded
	if refundable < 0 {
		refundable = 0
	}

	return ProratedRefund{
		RefundableAmount: refundable,
		RefundPercentage: float64(remaining) * 100 / float64(originalCredits),
	}
}

// CalculateSubscriptionRefund is the time-proportional analogue for
// subscription payments: the refundable amount is the share of the period
// still ahead. See CalculateSubscriptionRefundAt.
func CalculateSubscriptionRefund(originalAmount int64, periodStart, periodEnd time.Time) ProratedRefund {
	return CalculateSubscriptionRefundAt(originalAmount, periodStart, periodEnd, time.Now().UTC())
}

// CalculateSubscriptionRefundAt is CalculateSubscriptionRefund with an
// explicit clock.
func CalculateSubscriptionRefundAt(originalAmount int64, periodStart, periodEnd time.Time, now time.Time) ProratedRefund {
	totalDays := daysRemaining(periodEnd, periodStart)
	if totalDays <= 0 {
		return ProratedRefund{}
	}

	remaining := daysRemaining(periodEnd, now)
	if remaining > totalDays {
		remaining = totalDays
	}
	if remaining <= 0 {
		return ProratedRefund{}
	}

	return ProratedRefund{
		RefundableAmount: originalAmount * int64(remaining) / int64(totalDays),
		RefundPercentage: float64(remaining) * 100 / float64(totalDays),
	}
}

// DetermineRefundType picks the refund classification: prorated whenever any
// of the purchased credits were consumed, full when the request covers the
// whole original amount, partial otherwise.
func DetermineRefundType(requestedAmount, originalAmount, usedCredits int64) RefundType {
	switch {
	case usedCredits > 0:
		return RefundProrated
	case requestedAmount >= originalAmount:
		return RefundFull
	default:
		return RefundPartial
	}
}
