package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/orderid"
	"github.com/dmitrymomot/billingkit/pkg/paygate"
	"github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/entitlement"
)

// fakeGateway approves or rejects every call with a fixed outcome.
type fakeGateway struct {
	err      error
	confirms int
	charges  int
}

func (g *fakeGateway) Confirm(ctx context.Context, req paygate.ConfirmRequest) (*paygate.Transaction, error) {
	g.confirms++
	if g.err != nil {
		return nil, g.err
	}
	return &paygate.Transaction{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Status:        "DONE",
		Amount:        req.Amount,
	}, nil
}

func (g *fakeGateway) IssueBillingToken(ctx context.Context, req paygate.IssueTokenRequest) (*paygate.BillingToken, error) {
	return &paygate.BillingToken{Token: "btok_test", CustomerKey: req.CustomerKey}, nil
}

func (g *fakeGateway) ChargeBillingToken(ctx context.Context, req paygate.ChargeTokenRequest) (*paygate.Transaction, error) {
	g.charges++
	if g.err != nil {
		return nil, g.err
	}
	return &paygate.Transaction{
		TransactionID: "tx_" + req.OrderID,
		OrderID:       req.OrderID,
		Status:        "DONE",
		Amount:        req.Amount,
	}, nil
}

func testCatalog() billing.Catalog {
	return billing.NewCatalog(
		[]billing.Plan{
			{ID: "free", Rank: 0, DailyGenerationLimit: 3},
			{ID: "starter", Rank: 1, DailyGenerationLimit: 5, PeriodCredits: 50,
				Prices: map[billing.BillingCycle]int64{billing.CycleMonthly: 9900}},
			{ID: "pro", Rank: 2, DailyGenerationLimit: 10, PeriodCredits: 150,
				Prices: map[billing.BillingCycle]int64{billing.CycleMonthly: 24900, billing.CycleYearly: 249000}},
		},
		[]billing.CreditPackage{
			{ID: "credits-150", Credits: 150, Price: 24900},
		},
	)
}

type fixture struct {
	svc          *billing.Service
	storage      billing.Storage
	gateway      *fakeGateway
	entitlements *entitlement.Service
}

func newFixture(t *testing.T, gwErr error) fixture {
	t.Helper()

	catalog := testCatalog()
	ents, err := entitlement.NewService(entitlement.NewMemoryStorage(), func(plan string) int {
		if p, ok := catalog.Plan(plan); ok {
			return p.DailyGenerationLimit
		}
		return 0
	})
	require.NoError(t, err)

	gw := &fakeGateway{err: gwErr}
	storage := billing.NewMemoryStorage()
	svc, err := billing.NewService(storage, catalog, gw, ents)
	require.NoError(t, err)

	return fixture{svc: svc, storage: storage, gateway: gw, entitlements: ents}
}

func subscriptionOrderID(t *testing.T) string {
	t.Helper()
	oid, err := orderid.New(orderid.TypeSubscription)
	require.NoError(t, err)
	return oid
}

func creditOrderID(t *testing.T) string {
	t.Helper()
	oid, err := orderid.New(orderid.TypeCreditPurchase)
	require.NoError(t, err)
	return oid
}

func TestService_ConfirmSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("opens the subscription and grants entitlement", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.entitlements.Ensure(ctx, "acct", "free")
		require.NoError(t, err)

		payment, err := f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID:     "acct",
			PlanID:        "pro",
			Cycle:         billing.CycleMonthly,
			OrderID:       subscriptionOrderID(t),
			TransactionID: "tx_1",
			Amount:        24900,
		})
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentCompleted, payment.Status)
		require.NotNil(t, payment.GatewayTransactionID)
		assert.Equal(t, "tx_1", *payment.GatewayTransactionID)
		assert.NotNil(t, payment.PaidAt)

		sub, err := f.storage.ActiveSubscription(ctx, "acct")
		require.NoError(t, err)
		assert.Equal(t, "pro", sub.Plan)
		assert.Equal(t, billing.SubscriptionActive, sub.Status)
		assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart))

		balance, err := f.entitlements.Balance(ctx, "acct")
		require.NoError(t, err)
		assert.EqualValues(t, 150, balance)
	})

	t.Run("rejects a second active subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID: "acct", PlanID: "starter", Cycle: billing.CycleMonthly,
			OrderID: subscriptionOrderID(t), TransactionID: "tx_1", Amount: 9900,
		})
		require.NoError(t, err)

		_, err = f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
			OrderID: subscriptionOrderID(t), TransactionID: "tx_2", Amount: 24900,
		})
		assert.ErrorIs(t, err, billing.ErrSubscriptionExists)
	})

	t.Run("validation happens before the gateway is touched", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name    string
			params  billing.ConfirmSubscriptionParams
			wantErr error
		}{
			{
				name: "malformed order id",
				params: billing.ConfirmSubscriptionParams{
					AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
					OrderID: "not-an-order", Amount: 24900,
				},
				wantErr: orderid.ErrInvalidOrderID,
			},
			{
				name: "wrong order type",
				params: billing.ConfirmSubscriptionParams{
					AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
					OrderID: "CRD_20250810120000_a1b2c3d4", Amount: 24900,
				},
				wantErr: orderid.ErrInvalidOrderID,
			},
			{
				name: "unknown plan",
				params: billing.ConfirmSubscriptionParams{
					AccountID: "acct", PlanID: "enterprise", Cycle: billing.CycleMonthly,
					OrderID: "SUB_20250810120000_a1b2c3d4", Amount: 24900,
				},
				wantErr: billing.ErrUnknownPlan,
			},
			{
				name: "unsupported cycle",
				params: billing.ConfirmSubscriptionParams{
					AccountID: "acct", PlanID: "starter", Cycle: billing.CycleYearly,
					OrderID: "SUB_20250810120000_a1b2c3d4", Amount: 9900,
				},
				wantErr: billing.ErrUnsupportedCycle,
			},
			{
				name: "amount mismatch",
				params: billing.ConfirmSubscriptionParams{
					AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
					OrderID: "SUB_20250810120000_a1b2c3d4", Amount: 100,
				},
				wantErr: billing.ErrAmountMismatch,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				f := newFixture(t, nil)
				_, err := f.svc.ConfirmSubscription(ctx, tt.params)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, f.gateway.confirms)
			})
		}
	})

	t.Run("terminal gateway rejection marks the payment failed", func(t *testing.T) {
		t.Parallel()
		gwErr := &paygate.Error{Code: paygate.CodeInvalidCardExpiration, Message: "card expired", HTTPStatus: 400}
		f := newFixture(t, gwErr)

		oid := subscriptionOrderID(t)
		_, err := f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
			OrderID: oid, TransactionID: "tx_1", Amount: 24900,
		})
		require.Error(t, err)

		payment, err := f.storage.PaymentByOrderID(ctx, oid)
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentFailed, payment.Status)

		_, err = f.storage.ActiveSubscription(ctx, "acct")
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("retryable gateway failure leaves the payment pending", func(t *testing.T) {
		t.Parallel()
		gwErr := &paygate.Error{Code: paygate.CodeNetworkError, Message: "timeout"}
		f := newFixture(t, gwErr)

		oid := subscriptionOrderID(t)
		_, err := f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
			OrderID: oid, TransactionID: "tx_1", Amount: 24900,
		})
		require.Error(t, err)

		// Reconciliation is still owed: the webhook settles it later.
		payment, err := f.storage.PaymentByOrderID(ctx, oid)
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentPending, payment.Status)
	})
}

func TestService_ConfirmCreditPurchase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("grants the purchased credits", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.entitlements.Ensure(ctx, "acct", "free")
		require.NoError(t, err)

		payment, err := f.svc.ConfirmCreditPurchase(ctx, billing.ConfirmCreditPurchaseParams{
			AccountID:     "acct",
			PackageID:     "credits-150",
			OrderID:       creditOrderID(t),
			TransactionID: "tx_1",
			Amount:        24900,
		})
		require.NoError(t, err)
		assert.Equal(t, billing.PaymentCompleted, payment.Status)
		assert.Equal(t, billing.KindCreditPurchase, payment.Kind)
		assert.Equal(t, "150", payment.Metadata["credits"])

		balance, err := f.entitlements.Balance(ctx, "acct")
		require.NoError(t, err)
		assert.EqualValues(t, 150, balance)
	})

	t.Run("unknown package", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.svc.ConfirmCreditPurchase(ctx, billing.ConfirmCreditPurchaseParams{
			AccountID: "acct", PackageID: "credits-9000",
			OrderID: creditOrderID(t), Amount: 24900,
		})
		assert.ErrorIs(t, err, billing.ErrUnknownPackage)
	})

	t.Run("duplicate order id is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.entitlements.Ensure(ctx, "acct", "free")
		require.NoError(t, err)

		oid := creditOrderID(t)
		_, err = f.svc.ConfirmCreditPurchase(ctx, billing.ConfirmCreditPurchaseParams{
			AccountID: "acct", PackageID: "credits-150",
			OrderID: oid, TransactionID: "tx_1", Amount: 24900,
		})
		require.NoError(t, err)

		_, err = f.svc.ConfirmCreditPurchase(ctx, billing.ConfirmCreditPurchaseParams{
			AccountID: "acct", PackageID: "credits-150",
			OrderID: oid, TransactionID: "tx_2", Amount: 24900,
		})
		assert.ErrorIs(t, err, billing.ErrDuplicateOrderID)
	})
}

func TestService_RenewSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.entitlements.Ensure(ctx, "acct", "free")
	require.NoError(t, err)

	_, err = f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
		AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
		OrderID: subscriptionOrderID(t), TransactionID: "tx_1", Amount: 24900,
	})
	require.NoError(t, err)

	before, err := f.storage.ActiveSubscription(ctx, "acct")
	require.NoError(t, err)

	payment, err := f.svc.RenewSubscription(ctx, "acct", "btok_test", "cust_1")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentCompleted, payment.Status)
	assert.Equal(t, 1, f.gateway.charges)

	after, err := f.storage.ActiveSubscription(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, before.CurrentPeriodEnd, after.CurrentPeriodStart)
	assert.True(t, after.CurrentPeriodEnd.After(before.CurrentPeriodEnd))

	// Opening grant plus renewal grant.
	balance, err := f.entitlements.Balance(ctx, "acct")
	require.NoError(t, err)
	assert.EqualValues(t, 300, balance)
}

func TestService_PreviewPlanChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.entitlements.Ensure(ctx, "acct", "free")
	require.NoError(t, err)

	_, err = f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
		AccountID: "acct", PlanID: "starter", Cycle: billing.CycleMonthly,
		OrderID: subscriptionOrderID(t), TransactionID: "tx_1", Amount: 9900,
	})
	require.NoError(t, err)

	p, err := f.svc.PreviewPlanChange(ctx, "acct", "pro", billing.CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, billing.ChangeUpgrade, p.ChangeType)
	assert.Positive(t, p.ProratedAmount)

	_, err = f.svc.PreviewPlanChange(ctx, "nobody", "pro", billing.CycleMonthly)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
}

func TestService_CancelSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("immediate cancel drops the account to the free tier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.entitlements.Ensure(ctx, "acct", "free")
		require.NoError(t, err)

		_, err = f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
			OrderID: subscriptionOrderID(t), TransactionID: "tx_1", Amount: 24900,
		})
		require.NoError(t, err)

		sub, err := f.svc.CancelSubscription(ctx, "acct", false)
		require.NoError(t, err)
		assert.Equal(t, billing.SubscriptionCanceled, sub.Status)
		assert.NotNil(t, sub.CanceledAt)

		_, err = f.storage.ActiveSubscription(ctx, "acct")
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("deferred cancel keeps the subscription in force", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.entitlements.Ensure(ctx, "acct", "free")
		require.NoError(t, err)

		_, err = f.svc.ConfirmSubscription(ctx, billing.ConfirmSubscriptionParams{
			AccountID: "acct", PlanID: "pro", Cycle: billing.CycleMonthly,
			OrderID: subscriptionOrderID(t), TransactionID: "tx_1", Amount: 24900,
		})
		require.NoError(t, err)

		sub, err := f.svc.CancelSubscription(ctx, "acct", true)
		require.NoError(t, err)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, billing.SubscriptionActive, sub.Status)

		still, err := f.storage.ActiveSubscription(ctx, "acct")
		require.NoError(t, err)
		assert.True(t, still.CancelAtPeriodEnd)
	})

	t.Run("no active subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.svc.CancelSubscription(ctx, "acct", false)
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})
}
