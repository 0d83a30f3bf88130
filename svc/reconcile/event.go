package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/billingkit/svc/billing"
)

// EventType identifies the kind of gateway callback.
type EventType string

const (
	EventPaymentStatusChanged      EventType = "PAYMENT_STATUS_CHANGED"
	EventBillingTokenStatusChanged EventType = "BILLING_TOKEN_STATUS_CHANGED"
	EventVirtualAccountDeposited   EventType = "VIRTUAL_ACCOUNT_DEPOSITED"
)

// Envelope is the wire form of every gateway callback.
type Envelope struct {
	EventType string          `json:"eventType"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// Event is one of the known callback variants, or Unknown. The set is
// sealed; dispatch with a type switch.
type Event interface {
	eventType() EventType
}

// PaymentStatusChanged reports a status transition on a charge.
type PaymentStatusChanged struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	// CancelAmount is set for partial cancellations, zero otherwise.
	CancelAmount int64 `json:"cancelAmount"`
}

func (PaymentStatusChanged) eventType() EventType { return EventPaymentStatusChanged }

// BillingTokenStatusChanged reports that a stored billing token changed
// state, e.g. was revoked by the card holder.
type BillingTokenStatusChanged struct {
	Token       string `json:"billingKey"`
	CustomerKey string `json:"customerKey"`
	Status      string `json:"status"`
}

func (BillingTokenStatusChanged) eventType() EventType { return EventBillingTokenStatusChanged }

// VirtualAccountDeposited reports that a bank-transfer deposit settled a
// waiting payment.
type VirtualAccountDeposited struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
}

func (VirtualAccountDeposited) eventType() EventType { return EventVirtualAccountDeposited }

// Unknown is any event type this service does not handle. It is logged and
// persisted, never silently dropped.
type Unknown struct {
	Type string
	Data json.RawMessage
}

func (Unknown) eventType() EventType { return "" }

// ParseEvent decodes a raw callback body into its event variant.
func ParseEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	switch EventType(env.EventType) {
	case EventPaymentStatusChanged:
		var e PaymentStatusChanged
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return e, nil
	case EventBillingTokenStatusChanged:
		var e BillingTokenStatusChanged
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return e, nil
	case EventVirtualAccountDeposited:
		var e VirtualAccountDeposited
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return e, nil
	default:
		return Unknown{Type: env.EventType, Data: env.Data}, nil
	}
}

// DedupKey derives the event's idempotency key from the raw payload, so an
// identical redelivery maps to the same event-log row.
func DedupKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// CanonicalStatus maps the provider's status vocabulary onto the local
// payment status space. The second return is false for unrecognized codes,
// which leave the payment unchanged.
func CanonicalStatus(provider string) (billing.PaymentStatus, bool) {
	switch provider {
	case "DONE":
		return billing.PaymentCompleted, true
	case "CANCELED":
		return billing.PaymentCanceled, true
	case "PARTIAL_CANCELED":
		return billing.PaymentPartialRefunded, true
	case "WAITING_FOR_DEPOSIT":
		return billing.PaymentPending, true
	case "ABORTED", "EXPIRED":
		return billing.PaymentFailed, true
	default:
		return "", false
	}
}
