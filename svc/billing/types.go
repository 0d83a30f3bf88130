package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the canonical status space payments move through.
type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentCompleted       PaymentStatus = "completed"
	PaymentFailed          PaymentStatus = "failed"
	PaymentCanceled        PaymentStatus = "canceled"
	PaymentRefunded        PaymentStatus = "refunded"
	PaymentPartialRefunded PaymentStatus = "partial_refunded"
)

// PaymentKind distinguishes what a charge pays for.
type PaymentKind string

const (
	KindSubscription   PaymentKind = "subscription"
	KindCreditPurchase PaymentKind = "credit_purchase"
)

// Payment is one charge against the gateway. OrderID is generated once, never
// reused, and correlates the outbound charge with its eventual webhook
// callback.
type Payment struct {
	ID                   uuid.UUID
	AccountID            string
	OrderID              string
	GatewayTransactionID *string
	Kind                 PaymentKind
	Status               PaymentStatus
	// Amount in currency minor units.
	Amount int64
	// Metadata carries kind-specific detail: plan and cycle for
	// subscriptions, package id and credit count for purchases.
	Metadata  map[string]string
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionStatus is a subscription's lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionPaused   SubscriptionStatus = "paused"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is an account's recurring plan. At most one active
// subscription exists per account, and CurrentPeriodEnd strictly follows
// CurrentPeriodStart.
type Subscription struct {
	ID                 uuid.UUID
	AccountID          string
	Plan               string
	BillingCycle       BillingCycle
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsActive reports whether the subscription is currently in force.
func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// Storage persists payments and subscriptions.
type Storage interface {
	// CreatePayment inserts a new payment, or ErrDuplicateOrderID when the
	// order id was already used.
	CreatePayment(ctx context.Context, p Payment) error

	// Payment returns a payment by id, or ErrPaymentNotFound.
	Payment(ctx context.Context, id uuid.UUID) (Payment, error)

	// PaymentByOrderID returns a payment by its order id, or
	// ErrPaymentNotFound.
	PaymentByOrderID(ctx context.Context, orderID string) (Payment, error)

	// PaymentByGatewayTransactionID returns a payment by the gateway's
	// transaction id, or ErrPaymentNotFound.
	PaymentByGatewayTransactionID(ctx context.Context, txID string) (Payment, error)

	// UpdatePayment persists the payment's mutable fields: status, gateway
	// transaction id, and paid-at.
	UpdatePayment(ctx context.Context, p Payment) error

	// CreateSubscription inserts a new subscription, or
	// ErrSubscriptionExists when the account already has an active one.
	CreateSubscription(ctx context.Context, s Subscription) error

	// ActiveSubscription returns the account's active subscription, or
	// ErrSubscriptionNotFound.
	ActiveSubscription(ctx context.Context, accountID string) (Subscription, error)

	// UpdateSubscription persists the subscription's mutable fields.
	UpdateSubscription(ctx context.Context, s Subscription) error
}
