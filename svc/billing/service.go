package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/orderid"
	"github.com/dmitrymomot/billingkit/pkg/paygate"
	"github.com/dmitrymomot/billingkit/svc/entitlement"
)

// Gateway is the payment-gateway surface the billing service drives.
// *paygate.Client satisfies it.
type Gateway interface {
	Confirm(ctx context.Context, req paygate.ConfirmRequest) (*paygate.Transaction, error)
	IssueBillingToken(ctx context.Context, req paygate.IssueTokenRequest) (*paygate.BillingToken, error)
	ChargeBillingToken(ctx context.Context, req paygate.ChargeTokenRequest) (*paygate.Transaction, error)
}

// Entitlements is the slice of the entitlement ledger the billing service
// needs. *entitlement.Service satisfies it.
type Entitlements interface {
	Ensure(ctx context.Context, accountID, plan string) (entitlement.Entitlement, error)
	Credit(ctx context.Context, accountID string, amount int64, typ entitlement.TransactionType, reason string, relatedPaymentID *string, expiresAt *time.Time) (int64, error)
	Debit(ctx context.Context, accountID string, amount int64, typ entitlement.TransactionType, reason string, relatedPaymentID *string) (int64, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	ChangePlan(ctx context.Context, accountID, plan string) error
}

// Service orchestrates checkout flows: amount validation against the
// catalog, the synchronous gateway call, payment persistence, and the
// entitlement grant.
type Service struct {
	storage      Storage
	catalog      Catalog
	gateway      Gateway
	entitlements Entitlements
	log          *slog.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the billing service.
func NewService(storage Storage, catalog Catalog, gateway Gateway, entitlements Entitlements, opts ...Option) (*Service, error) {
	switch {
	case storage == nil:
		return nil, ErrStorageRequired
	case catalog == nil:
		return nil, ErrCatalogRequired
	case gateway == nil:
		return nil, ErrGatewayRequired
	case entitlements == nil:
		return nil, ErrEntitlementsRequired
	}

	s := &Service{
		storage:      storage,
		catalog:      catalog,
		gateway:      gateway,
		entitlements: entitlements,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConfirmSubscriptionParams carries a subscription checkout confirmation.
// OrderID and TransactionID come back from the customer's in-browser
// authorization.
type ConfirmSubscriptionParams struct {
	AccountID     string
	PlanID        string
	Cycle         BillingCycle
	OrderID       string
	TransactionID string
	Amount        int64
}

// ConfirmSubscription finalizes a subscription checkout: it confirms the
// authorized charge with the gateway, records the completed payment, opens
// the subscription, and grants the plan's entitlement.
func (s *Service) ConfirmSubscription(ctx context.Context, params ConfirmSubscriptionParams) (Payment, error) {
	oid, err := orderid.Parse(params.OrderID)
	if err != nil {
		return Payment{}, err
	}
	if oid.Type != orderid.TypeSubscription {
		return Payment{}, fmt.Errorf("%w: order %s is not a subscription order", orderid.ErrInvalidOrderID, params.OrderID)
	}

	plan, ok := s.catalog.Plan(params.PlanID)
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrUnknownPlan, params.PlanID)
	}
	price, ok := plan.Price(params.Cycle)
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedCycle, params.PlanID, params.Cycle)
	}
	if params.Amount != price {
		return Payment{}, fmt.Errorf("%w: got %d, plan price is %d", ErrAmountMismatch, params.Amount, price)
	}

	if _, err := s.storage.ActiveSubscription(ctx, params.AccountID); err == nil {
		return Payment{}, ErrSubscriptionExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return Payment{}, err
	}

	payment, err := s.createPending(ctx, params.AccountID, params.OrderID, KindSubscription, params.Amount, map[string]string{
		"plan":  params.PlanID,
		"cycle": string(params.Cycle),
	})
	if err != nil {
		return Payment{}, err
	}

	tx, err := s.gateway.Confirm(ctx, paygate.ConfirmRequest{
		TransactionID: params.TransactionID,
		OrderID:       params.OrderID,
		Amount:        params.Amount,
	})
	if err != nil {
		return payment, s.failOnTerminal(ctx, payment, err)
	}

	payment, err = s.settle(ctx, payment, tx)
	if err != nil {
		return payment, err
	}

	if err := s.openSubscription(ctx, params.AccountID, plan, params.Cycle, payment); err != nil {
		return payment, err
	}
	return payment, nil
}

// ConfirmCreditPurchaseParams carries a credit-package checkout confirmation.
type ConfirmCreditPurchaseParams struct {
	AccountID     string
	PackageID     string
	OrderID       string
	TransactionID string
	Amount        int64
}

// ConfirmCreditPurchase finalizes a credit-package checkout and grants the
// purchased credits through the ledger.
func (s *Service) ConfirmCreditPurchase(ctx context.Context, params ConfirmCreditPurchaseParams) (Payment, error) {
	oid, err := orderid.Parse(params.OrderID)
	if err != nil {
		return Payment{}, err
	}
	if oid.Type != orderid.TypeCreditPurchase {
		return Payment{}, fmt.Errorf("%w: order %s is not a credit order", orderid.ErrInvalidOrderID, params.OrderID)
	}

	pkg, ok := s.catalog.CreditPackage(params.PackageID)
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrUnknownPackage, params.PackageID)
	}
	if params.Amount != pkg.Price {
		return Payment{}, fmt.Errorf("%w: got %d, package price is %d", ErrAmountMismatch, params.Amount, pkg.Price)
	}

	payment, err := s.createPending(ctx, params.AccountID, params.OrderID, KindCreditPurchase, params.Amount, map[string]string{
		"package": params.PackageID,
		"credits": strconv.FormatInt(pkg.Credits, 10),
	})
	if err != nil {
		return Payment{}, err
	}

	tx, err := s.gateway.Confirm(ctx, paygate.ConfirmRequest{
		TransactionID: params.TransactionID,
		OrderID:       params.OrderID,
		Amount:        params.Amount,
	})
	if err != nil {
		return payment, s.failOnTerminal(ctx, payment, err)
	}

	payment, err = s.settle(ctx, payment, tx)
	if err != nil {
		return payment, err
	}

	paymentID := payment.ID.String()
	if _, err := s.entitlements.Credit(ctx, params.AccountID, pkg.Credits,
		entitlement.TransactionPurchase, "credit package "+params.PackageID, &paymentID, nil); err != nil {
		return payment, err
	}
	return payment, nil
}

// RenewSubscription charges the account's stored billing token for the next
// period, advances the subscription, and grants the period's credits.
func (s *Service) RenewSubscription(ctx context.Context, accountID, billingToken, customerKey string) (Payment, error) {
	sub, err := s.storage.ActiveSubscription(ctx, accountID)
	if err != nil {
		return Payment{}, err
	}

	plan, ok := s.catalog.Plan(sub.Plan)
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrUnknownPlan, sub.Plan)
	}
	price, ok := plan.Price(sub.BillingCycle)
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedCycle, sub.Plan, sub.BillingCycle)
	}

	oid, err := orderid.New(orderid.TypeTokenCharge)
	if err != nil {
		return Payment{}, err
	}
	payment, err := s.createPending(ctx, accountID, oid, KindSubscription, price, map[string]string{
		"plan":    sub.Plan,
		"cycle":   string(sub.BillingCycle),
		"renewal": "true",
	})
	if err != nil {
		return Payment{}, err
	}

	tx, err := s.gateway.ChargeBillingToken(ctx, paygate.ChargeTokenRequest{
		Token:       billingToken,
		CustomerKey: customerKey,
		OrderID:     oid,
		OrderName:   plan.Name + " renewal",
		Amount:      price,
	})
	if err != nil {
		return payment, s.failOnTerminal(ctx, payment, err)
	}

	payment, err = s.settle(ctx, payment, tx)
	if err != nil {
		return payment, err
	}

	now := s.now().UTC()
	sub.CurrentPeriodStart = sub.CurrentPeriodEnd
	sub.CurrentPeriodEnd = AddCycle(sub.CurrentPeriodEnd, sub.BillingCycle)
	sub.UpdatedAt = now
	if err := s.storage.UpdateSubscription(ctx, sub); err != nil {
		return payment, err
	}

	paymentID := payment.ID.String()
	if _, err := s.entitlements.Credit(ctx, accountID, plan.PeriodCredits,
		entitlement.TransactionSubscriptionGrant, "subscription renewal "+sub.Plan, &paymentID, nil); err != nil {
		return payment, err
	}
	return payment, nil
}

// PreviewPlanChange computes the proration of moving the account's active
// subscription to a new plan or cycle, without changing anything.
func (s *Service) PreviewPlanChange(ctx context.Context, accountID, newPlanID string, newCycle BillingCycle) (Proration, error) {
	sub, err := s.storage.ActiveSubscription(ctx, accountID)
	if err != nil {
		return Proration{}, err
	}

	current, ok := s.catalog.Plan(sub.Plan)
	if !ok {
		return Proration{}, fmt.Errorf("%w: %s", ErrUnknownPlan, sub.Plan)
	}
	next, ok := s.catalog.Plan(newPlanID)
	if !ok {
		return Proration{}, fmt.Errorf("%w: %s", ErrUnknownPlan, newPlanID)
	}
	if _, ok := next.Price(newCycle); !ok {
		return Proration{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedCycle, newPlanID, newCycle)
	}

	return CalculateProrationAt(current, sub.BillingCycle, next, newCycle, sub.CurrentPeriodEnd, s.now().UTC()), nil
}

// CancelSubscription cancels the account's active subscription. With
// atPeriodEnd the subscription stays in force until the period closes;
// otherwise it ends immediately and the account drops to the free tier.
func (s *Service) CancelSubscription(ctx context.Context, accountID string, atPeriodEnd bool) (Subscription, error) {
	sub, err := s.storage.ActiveSubscription(ctx, accountID)
	if err != nil {
		return Subscription{}, err
	}

	now := s.now().UTC()
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		sub.UpdatedAt = now
		if err := s.storage.UpdateSubscription(ctx, sub); err != nil {
			return Subscription{}, err
		}
		return sub, nil
	}

	sub.Status = SubscriptionCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := s.storage.UpdateSubscription(ctx, sub); err != nil {
		return Subscription{}, err
	}
	if err := s.entitlements.ChangePlan(ctx, accountID, s.catalog.FreePlan().ID); err != nil {
		return Subscription{}, err
	}

	s.log.InfoContext(ctx, "subscription canceled",
		slog.String("account_id", accountID),
		slog.String("subscription_id", sub.ID.String()))
	return sub, nil
}

// ActivateSubscription applies a subscription payment that settled
// asynchronously, through a webhook rather than the checkout flow. The plan
// and cycle come from the payment's metadata. Without an active subscription
// the payment opens one; with an active subscription it is a renewal charge
// and advances the current period. Either way the period's credits are
// granted.
func (s *Service) ActivateSubscription(ctx context.Context, payment Payment) error {
	if payment.Kind != KindSubscription {
		return nil
	}

	plan, ok := s.catalog.Plan(payment.Metadata["plan"])
	if !ok {
		s.log.WarnContext(ctx, "settled subscription payment names no known plan",
			slog.String("payment_id", payment.ID.String()),
			slog.String("plan", payment.Metadata["plan"]))
		return nil
	}
	cycle := BillingCycle(payment.Metadata["cycle"])
	if _, ok := plan.Price(cycle); !ok {
		s.log.WarnContext(ctx, "settled subscription payment carries no valid cycle",
			slog.String("payment_id", payment.ID.String()),
			slog.String("cycle", payment.Metadata["cycle"]))
		return nil
	}

	sub, err := s.storage.ActiveSubscription(ctx, payment.AccountID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		return s.openSubscription(ctx, payment.AccountID, plan, cycle, payment)
	case err != nil:
		return err
	}

	now := s.now().UTC()
	sub.CurrentPeriodStart = sub.CurrentPeriodEnd
	sub.CurrentPeriodEnd = AddCycle(sub.CurrentPeriodEnd, sub.BillingCycle)
	sub.UpdatedAt = now
	if err := s.storage.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	paymentID := payment.ID.String()
	if _, err := s.entitlements.Credit(ctx, payment.AccountID, plan.PeriodCredits,
		entitlement.TransactionSubscriptionGrant, "subscription renewal "+sub.Plan, &paymentID, nil); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription advanced from settled payment",
		slog.String("account_id", payment.AccountID),
		slog.String("order_id", payment.OrderID))
	return nil
}

// CompensateRefund reverses what a payment granted once the gateway reports
// it canceled or refunded. Credit purchases debit the granted credits
// pro-rata to the refunded amount, clamped to the remaining balance so the
// ledger is never driven negative. Subscription payments cancel the
// subscription and drop the account to the free tier. refundedAmount of zero
// means the full payment amount was reversed.
func (s *Service) CompensateRefund(ctx context.Context, payment Payment, refundedAmount int64) error {
	switch payment.Kind {
	case KindCreditPurchase:
		granted, err := strconv.ParseInt(payment.Metadata["credits"], 10, 64)
		if err != nil || granted <= 0 {
			s.log.WarnContext(ctx, "refunded credit purchase carries no credit count",
				slog.String("payment_id", payment.ID.String()))
			return nil
		}

		share := granted
		if refundedAmount > 0 && refundedAmount < payment.Amount && payment.Amount > 0 {
			share = granted * refundedAmount / payment.Amount
		}

		balance, err := s.entitlements.Balance(ctx, payment.AccountID)
		if err != nil {
			return err
		}
		if share > balance {
			share = balance
		}
		if share == 0 {
			return nil
		}

		paymentID := payment.ID.String()
		_, err = s.entitlements.Debit(ctx, payment.AccountID, share,
			entitlement.TransactionRefund, "refund of order "+payment.OrderID, &paymentID)
		return err

	case KindSubscription:
		sub, err := s.storage.ActiveSubscription(ctx, payment.AccountID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		sub.Status = SubscriptionCanceled
		sub.CanceledAt = &now
		sub.UpdatedAt = now
		if err := s.storage.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := s.entitlements.ChangePlan(ctx, payment.AccountID, s.catalog.FreePlan().ID); err != nil {
			return err
		}

		s.log.InfoContext(ctx, "subscription canceled after refund",
			slog.String("account_id", payment.AccountID),
			slog.String("order_id", payment.OrderID))
		return nil
	}
	return nil
}

func (s *Service) createPending(ctx context.Context, accountID, oid string, kind PaymentKind, amount int64, metadata map[string]string) (Payment, error) {
	now := s.now().UTC()
	payment := Payment{
		ID:        uuid.New(),
		AccountID: accountID,
		OrderID:   oid,
		Kind:      kind,
		Status:    PaymentPending,
		Amount:    amount,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreatePayment(ctx, payment); err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// settle records a successful gateway confirmation on the payment.
func (s *Service) settle(ctx context.Context, payment Payment, tx *paygate.Transaction) (Payment, error) {
	now := s.now().UTC()
	paidAt := now
	if tx.ApprovedAt != nil {
		paidAt = *tx.ApprovedAt
	}

	payment.Status = PaymentCompleted
	payment.GatewayTransactionID = &tx.TransactionID
	payment.PaidAt = &paidAt
	payment.UpdatedAt = now
	if err := s.storage.UpdatePayment(ctx, payment); err != nil {
		return payment, err
	}

	s.log.InfoContext(ctx, "payment completed",
		slog.String("order_id", payment.OrderID),
		slog.String("gateway_transaction_id", tx.TransactionID),
		slog.Int64("amount", payment.Amount))
	return payment, nil
}

// failOnTerminal marks the payment failed when the gateway rejected it
// terminally. Retryable errors leave the payment pending: the charge may
// have gone through gateway-side, and the webhook reconciler settles it.
func (s *Service) failOnTerminal(ctx context.Context, payment Payment, gwErr error) error {
	if paygate.IsRetryable(gwErr) {
		s.log.WarnContext(ctx, "gateway call failed, awaiting reconciliation",
			slog.String("order_id", payment.OrderID),
			slog.Any("error", gwErr))
		return gwErr
	}

	payment.Status = PaymentFailed
	payment.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdatePayment(ctx, payment); err != nil {
		return errors.Join(gwErr, err)
	}

	s.log.InfoContext(ctx, "payment rejected by gateway",
		slog.String("order_id", payment.OrderID),
		slog.Any("error", gwErr))
	return gwErr
}

func (s *Service) openSubscription(ctx context.Context, accountID string, plan Plan, cycle BillingCycle, payment Payment) error {
	now := s.now().UTC()
	sub := Subscription{
		ID:                 uuid.New(),
		AccountID:          accountID,
		Plan:               plan.ID,
		BillingCycle:       cycle,
		Status:             SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   AddCycle(now, cycle),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.storage.CreateSubscription(ctx, sub); err != nil {
		return err
	}

	if _, err := s.entitlements.Ensure(ctx, accountID, plan.ID); err != nil {
		return err
	}
	if err := s.entitlements.ChangePlan(ctx, accountID, plan.ID); err != nil {
		return err
	}

	paymentID := payment.ID.String()
	if _, err := s.entitlements.Credit(ctx, accountID, plan.PeriodCredits,
		entitlement.TransactionSubscriptionGrant, "subscription start "+plan.ID, &paymentID, nil); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "subscription opened",
		slog.String("account_id", accountID),
		slog.String("plan", plan.ID),
		slog.String("cycle", string(cycle)))
	return nil
}

// AddCycle advances t by one billing period.
func AddCycle(t time.Time, cycle BillingCycle) time.Time {
	if cycle == CycleYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
