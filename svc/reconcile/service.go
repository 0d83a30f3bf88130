package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/entitlement"
)

// Billing is the billing-service surface the reconciler drives:
// compensation for refunded payments and subscription activation for
// asynchronously settled ones. *billing.Service satisfies it.
type Billing interface {
	CompensateRefund(ctx context.Context, payment billing.Payment, refundedAmount int64) error
	ActivateSubscription(ctx context.Context, payment billing.Payment) error
}

// Entitlements is the ledger slice the reconciler needs for credit grants.
// *entitlement.Service satisfies it.
type Entitlements interface {
	Credit(ctx context.Context, accountID string, amount int64, typ entitlement.TransactionType, reason string, relatedPaymentID *string, expiresAt *time.Time) (int64, error)
}

// Reconciler applies gateway callbacks to payments, subscriptions, and the
// entitlement ledger.
type Reconciler struct {
	events       Storage
	payments     billing.Storage
	billing      Billing
	entitlements Entitlements
	log          *slog.Logger
	now          func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates the webhook reconciler.
func NewReconciler(events Storage, payments billing.Storage, billingSvc Billing, entitlements Entitlements, opts ...Option) (*Reconciler, error) {
	switch {
	case events == nil:
		return nil, ErrEventStorageRequired
	case payments == nil:
		return nil, ErrPaymentsRequired
	case billingSvc == nil:
		return nil, ErrBillingRequired
	case entitlements == nil:
		return nil, ErrEntitlementsRequired
	}

	r := &Reconciler{
		events:       events,
		payments:     payments,
		billing:      billingSvc,
		entitlements: entitlements,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// eventClaimTTL bounds how long one delivery holds an event exclusively.
// An expired claim means the holder died mid-application; the next delivery
// takes over.
const eventClaimTTL = time.Minute

// Process handles one raw callback body: it logs the event durably, claims
// it, applies it unless a previous delivery already did, and marks it
// processed. The returned error is for the caller's log only; the webhook
// endpoint must acknowledge receipt regardless.
func (r *Reconciler) Process(ctx context.Context, raw []byte) error {
	now := r.now().UTC()

	rec, err := r.events.LogEvent(ctx, EventRecord{
		ID:         DedupKey(raw),
		EventType:  envelopeType(raw),
		RawPayload: raw,
		ReceivedAt: now,
	})
	if err != nil {
		return err
	}
	if rec.ProcessedAt != nil {
		r.log.DebugContext(ctx, "duplicate event delivery ignored",
			slog.String("event_id", rec.ID))
		return nil
	}

	// The claim makes concurrent deliveries of the same payload
	// single-writer: only the holder applies, the loser short-circuits.
	won, err := r.events.ClaimEvent(ctx, rec.ID, now, eventClaimTTL)
	if err != nil {
		return err
	}
	if !won {
		r.log.DebugContext(ctx, "event held by a concurrent delivery",
			slog.String("event_id", rec.ID))
		return nil
	}

	event, err := ParseEvent(raw)
	if err != nil {
		r.recordFailure(ctx, rec.ID, err)
		return err
	}

	if err := r.apply(ctx, event); err != nil {
		r.recordFailure(ctx, rec.ID, err)
		return err
	}

	if _, err := r.events.MarkProcessed(ctx, rec.ID, r.now().UTC()); err != nil {
		return err
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case PaymentStatusChanged:
		return r.applyPaymentStatus(ctx, e)
	case VirtualAccountDeposited:
		return r.applyDeposit(ctx, e)
	case BillingTokenStatusChanged:
		r.log.InfoContext(ctx, "billing token status changed",
			slog.String("customer_key", e.CustomerKey),
			slog.String("status", e.Status))
		return nil
	case Unknown:
		r.log.WarnContext(ctx, "unhandled event type",
			slog.String("event_type", e.Type))
		return nil
	}
	return nil
}

func (r *Reconciler) applyPaymentStatus(ctx context.Context, e PaymentStatusChanged) error {
	payment, ok, err := r.lookupPayment(ctx, e.TransactionID, e.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	status, known := CanonicalStatus(e.Status)
	if !known {
		r.log.WarnContext(ctx, "unrecognized provider status, payment unchanged",
			slog.String("order_id", payment.OrderID),
			slog.String("provider_status", e.Status))
		return nil
	}

	switch status {
	case billing.PaymentCompleted:
		return r.complete(ctx, payment, e.TransactionID)
	case billing.PaymentPending:
		// WAITING_FOR_DEPOSIT confirms the charge exists but not the money.
		return nil
	case billing.PaymentFailed:
		if payment.Status == billing.PaymentCompleted {
			// A completed payment cannot retroactively fail; refunds carry
			// their own status codes.
			return nil
		}
		return r.updateStatus(ctx, payment, billing.PaymentFailed, e.TransactionID)
	case billing.PaymentCanceled, billing.PaymentRefunded, billing.PaymentPartialRefunded:
		if payment.Status == status {
			return nil
		}
		// Only a settled payment ever granted anything; the prior status
		// decides whether there is entitlement to claw back.
		granted := payment.Status == billing.PaymentCompleted ||
			payment.Status == billing.PaymentPartialRefunded
		if err := r.updateStatus(ctx, payment, status, e.TransactionID); err != nil {
			return err
		}
		if !granted {
			r.log.InfoContext(ctx, "unsettled payment canceled, nothing to compensate",
				slog.String("order_id", payment.OrderID),
				slog.String("prior_status", string(payment.Status)))
			return nil
		}
		refunded := e.CancelAmount
		if status != billing.PaymentPartialRefunded {
			refunded = payment.Amount
		}
		return r.billing.CompensateRefund(ctx, payment, refunded)
	}
	return nil
}

func (r *Reconciler) applyDeposit(ctx context.Context, e VirtualAccountDeposited) error {
	payment, ok, err := r.lookupPayment(ctx, e.TransactionID, e.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return r.complete(ctx, payment, e.TransactionID)
}

// complete settles a payment from an asynchronous confirmation. Credits are
// granted exactly once: a payment already in completed status is a no-op,
// which is what makes duplicate deliveries harmless.
func (r *Reconciler) complete(ctx context.Context, payment billing.Payment, txID string) error {
	if payment.Status == billing.PaymentCompleted {
		return nil
	}

	if err := r.updateStatus(ctx, payment, billing.PaymentCompleted, txID); err != nil {
		return err
	}

	switch payment.Kind {
	case billing.KindCreditPurchase:
		credits, err := strconv.ParseInt(payment.Metadata["credits"], 10, 64)
		if err != nil || credits <= 0 {
			r.log.WarnContext(ctx, "completed credit purchase carries no credit count",
				slog.String("payment_id", payment.ID.String()))
			return nil
		}
		paymentID := payment.ID.String()
		if _, err := r.entitlements.Credit(ctx, payment.AccountID, credits,
			entitlement.TransactionPurchase, "credit purchase "+payment.OrderID, &paymentID, nil); err != nil {
			return err
		}
	case billing.KindSubscription:
		if err := r.billing.ActivateSubscription(ctx, payment); err != nil {
			return err
		}
	}

	r.log.InfoContext(ctx, "payment settled from webhook",
		slog.String("order_id", payment.OrderID),
		slog.String("kind", string(payment.Kind)))
	return nil
}

func (r *Reconciler) updateStatus(ctx context.Context, payment billing.Payment, status billing.PaymentStatus, txID string) error {
	now := r.now().UTC()
	payment.Status = status
	payment.UpdatedAt = now
	if txID != "" && payment.GatewayTransactionID == nil {
		payment.GatewayTransactionID = &txID
	}
	if status == billing.PaymentCompleted && payment.PaidAt == nil {
		payment.PaidAt = &now
	}
	return r.payments.UpdatePayment(ctx, payment)
}

// lookupPayment correlates an event with a local payment. A missing payment
// is not an error: the event may belong to a charge this system never
// initiated, so it is logged and skipped.
func (r *Reconciler) lookupPayment(ctx context.Context, txID, orderID string) (billing.Payment, bool, error) {
	if txID != "" {
		payment, err := r.payments.PaymentByGatewayTransactionID(ctx, txID)
		if err == nil {
			return payment, true, nil
		}
		if !isPaymentNotFound(err) {
			return billing.Payment{}, false, err
		}
	}
	if orderID != "" {
		payment, err := r.payments.PaymentByOrderID(ctx, orderID)
		if err == nil {
			return payment, true, nil
		}
		if !isPaymentNotFound(err) {
			return billing.Payment{}, false, err
		}
	}

	r.log.WarnContext(ctx, "event does not correlate with any payment",
		slog.String("transaction_id", txID),
		slog.String("order_id", orderID))
	return billing.Payment{}, false, nil
}

// recordFailure stores the failure on the event row and releases the claim
// so a redelivery can retry immediately.
func (r *Reconciler) recordFailure(ctx context.Context, eventID string, cause error) {
	if err := r.events.RecordError(ctx, eventID, cause.Error()); err != nil {
		r.log.ErrorContext(ctx, "recording event failure failed",
			slog.String("event_id", eventID),
			slog.Any("error", err))
	}
	if err := r.events.ReleaseEvent(ctx, eventID); err != nil {
		r.log.ErrorContext(ctx, "releasing event claim failed",
			slog.String("event_id", eventID),
			slog.Any("error", err))
	}
}

func isPaymentNotFound(err error) bool {
	return errors.Is(err, billing.ErrPaymentNotFound)
}

// envelopeType extracts the event type for the log row without committing to
// a full parse; malformed bodies are logged as unparseable.
func envelopeType(raw []byte) string {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.EventType == "" {
		return "unparseable"
	}
	return env.EventType
}
