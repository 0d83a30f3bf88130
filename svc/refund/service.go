package refund

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/svc/billing"
)

// Entitlements is the ledger slice refund policy evaluation needs. The
// entitlement service satisfies it.
type Entitlements interface {
	Balance(ctx context.Context, accountID string) (int64, error)
}

// Service validates and records refund requests. The gateway call itself is
// the Scheduler's job; a freshly created request is pending until the next
// scheduler tick picks it up.
type Service struct {
	storage      Storage
	payments     billing.Storage
	entitlements Entitlements
	log          *slog.Logger
	now          func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the structured logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithServiceClock overrides the time source for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the refund request service.
func NewService(storage Storage, payments billing.Storage, entitlements Entitlements, opts ...ServiceOption) (*Service, error) {
	switch {
	case storage == nil:
		return nil, ErrStorageRequired
	case payments == nil:
		return nil, ErrPaymentsRequired
	case entitlements == nil:
		return nil, ErrEntitlementsRequired
	}

	s := &Service{
		storage:      storage,
		payments:     payments,
		entitlements: entitlements,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRequest runs the refund policy against the payment and, when
// admitted, records a pending refund request for the scheduler. A policy
// rejection is returned as ErrPolicyRejected wrapping the reason.
func (s *Service) CreateRequest(ctx context.Context, accountID string, paymentID uuid.UUID, requestedAmount int64, reason string) (Request, error) {
	payment, err := s.payments.Payment(ctx, paymentID)
	if err != nil {
		return Request{}, err
	}
	if payment.AccountID != accountID {
		return Request{}, ErrWrongAccount
	}
	if payment.GatewayTransactionID == nil {
		return Request{}, ErrNotRefundable
	}

	usedCredits, usagePercentage, err := s.usage(ctx, payment)
	if err != nil {
		return Request{}, err
	}

	alreadyRefunded, err := s.storage.CompletedTotal(ctx, paymentID)
	if err != nil {
		return Request{}, err
	}

	paidAt := payment.CreatedAt
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}

	maxRefundable := payment.Amount - alreadyRefunded
	switch {
	case usedCredits > 0:
		granted, _ := strconv.ParseInt(payment.Metadata["credits"], 10, 64)
		maxRefundable = billing.CalculateProratedRefund(payment.Amount, granted, usedCredits, alreadyRefunded).RefundableAmount
	case payment.Kind == billing.KindSubscription:
		// A subscription refund is capped by the share of the billing
		// period still ahead, not the full charge.
		cycle := billing.BillingCycle(payment.Metadata["cycle"])
		periodEnd := billing.AddCycle(paidAt, cycle)
		maxRefundable = billing.CalculateSubscriptionRefundAt(payment.Amount, paidAt, periodEnd, s.now().UTC()).RefundableAmount - alreadyRefunded
		if maxRefundable < 0 {
			maxRefundable = 0
		}
	}

	policy := billing.CheckRefundPolicyAt(paidAt, payment.Status, requestedAmount, maxRefundable, usagePercentage, s.now().UTC())
	if !policy.Allowed {
		return Request{}, fmt.Errorf("%w: %s", ErrPolicyRejected, policy.Reason)
	}
	for _, restriction := range policy.Restrictions {
		s.log.InfoContext(ctx, "refund admitted with restriction",
			slog.String("payment_id", paymentID.String()),
			slog.String("restriction", restriction))
	}

	now := s.now().UTC()
	req := Request{
		ID:              uuid.New(),
		PaymentID:       paymentID,
		RequestedAmount: requestedAmount,
		RefundType:      billing.DetermineRefundType(requestedAmount, payment.Amount, usedCredits),
		Status:          StatusPending,
		Reason:          reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.storage.CreateRequest(ctx, req); err != nil {
		return Request{}, err
	}

	s.log.InfoContext(ctx, "refund request created",
		slog.String("request_id", req.ID.String()),
		slog.String("payment_id", paymentID.String()),
		slog.Int64("amount", requestedAmount),
		slog.String("type", string(req.RefundType)))
	return req, nil
}

// usage estimates how much of a credit purchase the account has consumed.
// The remaining balance is compared against the purchase's grant; anything
// not covered by the balance counts as used.
func (s *Service) usage(ctx context.Context, payment billing.Payment) (usedCredits int64, usagePercentage float64, err error) {
	if payment.Kind != billing.KindCreditPurchase {
		return 0, 0, nil
	}

	granted, convErr := strconv.ParseInt(payment.Metadata["credits"], 10, 64)
	if convErr != nil || granted <= 0 {
		return 0, 0, nil
	}

	balance, err := s.entitlements.Balance(ctx, payment.AccountID)
	if err != nil {
		return 0, 0, err
	}

	if balance >= granted {
		return 0, 0, nil
	}
	used := granted - balance
	return used, float64(used) * 100 / float64(granted), nil
}
