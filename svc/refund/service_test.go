package refund_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/entitlement"
	"github.com/dmitrymomot/billingkit/svc/refund"
)

type serviceFixture struct {
	svc          *refund.Service
	storage      refund.Storage
	payments     billing.Storage
	entitlements *entitlement.Service
	now          time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		storage:  refund.NewMemoryStorage(),
		payments: billing.NewMemoryStorage(),
		now:      time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC),
	}

	ents, err := entitlement.NewService(entitlement.NewMemoryStorage(), func(string) int { return 3 })
	require.NoError(t, err)
	f.entitlements = ents

	svc, err := refund.NewService(f.storage, f.payments, ents,
		refund.WithServiceClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedPurchase stores a completed credit purchase and grants its credits.
func (f *serviceFixture) seedPurchase(t *testing.T, paidDaysAgo int) billing.Payment {
	t.Helper()
	ctx := context.Background()

	_, err := f.entitlements.Ensure(ctx, "acct", "free")
	require.NoError(t, err)

	paidAt := f.now.AddDate(0, 0, -paidDaysAgo)
	txID := "tx_1"
	payment := billing.Payment{
		ID:                   uuid.New(),
		AccountID:            "acct",
		OrderID:              "CRD_20250810120000_a1b2c3d4",
		GatewayTransactionID: &txID,
		Kind:                 billing.KindCreditPurchase,
		Status:               billing.PaymentCompleted,
		Amount:               24900,
		Metadata:             map[string]string{"credits": "150"},
		PaidAt:               &paidAt,
		CreatedAt:            paidAt,
		UpdatedAt:            paidAt,
	}
	require.NoError(t, f.payments.CreatePayment(ctx, payment))

	paymentID := payment.ID.String()
	_, err = f.entitlements.Credit(ctx, "acct", 150, entitlement.TransactionPurchase, "credit purchase", &paymentID, nil)
	require.NoError(t, err)
	return payment
}

// seedSubscriptionPayment stores a completed monthly subscription charge.
func (f *serviceFixture) seedSubscriptionPayment(t *testing.T, paidDaysAgo int) billing.Payment {
	t.Helper()
	ctx := context.Background()

	_, err := f.entitlements.Ensure(ctx, "acct", "free")
	require.NoError(t, err)

	paidAt := f.now.AddDate(0, 0, -paidDaysAgo)
	txID := "tx_sub"
	payment := billing.Payment{
		ID:                   uuid.New(),
		AccountID:            "acct",
		OrderID:              "SUB_20250814120000_a1b2c3d4",
		GatewayTransactionID: &txID,
		Kind:                 billing.KindSubscription,
		Status:               billing.PaymentCompleted,
		Amount:               24900,
		Metadata:             map[string]string{"plan": "pro", "cycle": "monthly"},
		PaidAt:               &paidAt,
		CreatedAt:            paidAt,
		UpdatedAt:            paidAt,
	}
	require.NoError(t, f.payments.CreatePayment(ctx, payment))
	return payment
}

func TestService_CreateRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("admits a request within the window", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		payment := f.seedPurchase(t, 3)

		req, err := f.svc.CreateRequest(ctx, "acct", payment.ID, 24900, "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, refund.StatusPending, req.Status)
		assert.Equal(t, billing.RefundFull, req.RefundType)
		assert.Zero(t, req.RetryCount)
	})

	t.Run("rejects a request eight days after payment", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		payment := f.seedPurchase(t, 8)

		_, err := f.svc.CreateRequest(ctx, "acct", payment.ID, 24900, "too late")
		require.ErrorIs(t, err, refund.ErrPolicyRejected)
		assert.Contains(t, err.Error(), "7-day")
	})

	t.Run("partial usage turns the request prorated", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		payment := f.seedPurchase(t, 3)

		// Burn half the granted credits.
		_, err := f.entitlements.Debit(ctx, "acct", 75, entitlement.TransactionUsage, "generations", nil)
		require.NoError(t, err)

		req, err := f.svc.CreateRequest(ctx, "acct", payment.ID, 12450, "partial")
		require.NoError(t, err)
		assert.Equal(t, billing.RefundProrated, req.RefundType)

		// The prorated ceiling caps a follow-up request for the full price.
		_, err = f.svc.CreateRequest(ctx, "acct", payment.ID, 24900, "full")
		require.ErrorIs(t, err, refund.ErrPolicyRejected)
		assert.Contains(t, err.Error(), "exceeds the refundable maximum")
	})

	t.Run("subscription refund is capped by the remaining period", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		// Paid 6 days into a 31-day period: 25 of 31 days remain, so at most
		// 24900*25/31 = 20080 is refundable.
		payment := f.seedSubscriptionPayment(t, 6)

		_, err := f.svc.CreateRequest(ctx, "acct", payment.ID, 24900, "full price back")
		require.ErrorIs(t, err, refund.ErrPolicyRejected)
		assert.Contains(t, err.Error(), "exceeds the refundable maximum")

		req, err := f.svc.CreateRequest(ctx, "acct", payment.ID, 20080, "unused time back")
		require.NoError(t, err)
		assert.Equal(t, refund.StatusPending, req.Status)
		assert.Equal(t, billing.RefundPartial, req.RefundType)
	})

	t.Run("foreign payment is rejected", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		payment := f.seedPurchase(t, 3)

		_, err := f.svc.CreateRequest(ctx, "intruder", payment.ID, 24900, "not mine")
		assert.ErrorIs(t, err, refund.ErrWrongAccount)
	})

	t.Run("unknown payment", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		_, err := f.svc.CreateRequest(ctx, "acct", uuid.New(), 24900, "ghost")
		assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
	})

	t.Run("payment without a gateway transaction", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)

		payment := billing.Payment{
			ID:        uuid.New(),
			AccountID: "acct",
			OrderID:   "CRD_20250810120000_ffb2c3d4",
			Kind:      billing.KindCreditPurchase,
			Status:    billing.PaymentCompleted,
			Amount:    24900,
			CreatedAt: f.now,
			UpdatedAt: f.now,
		}
		require.NoError(t, f.payments.CreatePayment(ctx, payment))

		_, err := f.svc.CreateRequest(ctx, "acct", payment.ID, 24900, "no tx")
		assert.ErrorIs(t, err, refund.ErrNotRefundable)
	})
}
