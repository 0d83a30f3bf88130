package refund

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/svc/billing"
)

// Status is a refund request's lifecycle state. completed and rejected are
// terminal; a request never leaves either.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// Request is one attempt to return money for a payment. RetryCount only
// increments on retryable gateway failures.
type Request struct {
	ID              uuid.UUID
	PaymentID       uuid.UUID
	RequestedAmount int64
	RefundType      billing.RefundType
	Status          Status
	RetryCount      int
	LastError       *string
	// NextRetryAt is the earliest moment the scheduler may re-drive the
	// request; nil means due immediately.
	NextRetryAt *time.Time
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Storage persists refund requests.
type Storage interface {
	// CreateRequest inserts a new request.
	CreateRequest(ctx context.Context, r Request) error

	// Request returns a request by id, or ErrRequestNotFound.
	Request(ctx context.Context, id uuid.UUID) (Request, error)

	// ClaimDue atomically moves up to limit due requests into processing
	// status and returns them. Due means pending or failed with retry_count
	// below maxRetries and no backoff deadline later than now, or an
	// abandoned processing claim last touched before staleBefore. A claimed
	// request is invisible to concurrent claimers.
	ClaimDue(ctx context.Context, maxRetries, limit int, now, staleBefore time.Time) ([]Request, error)

	// UpdateRequest persists the request's mutable fields.
	UpdateRequest(ctx context.Context, r Request) error

	// Exhausted returns non-terminal requests whose retry count reached
	// maxRetries, for operator follow-up.
	Exhausted(ctx context.Context, maxRetries int) ([]Request, error)

	// CompletedTotal sums the completed refund amounts for a payment.
	CompletedTotal(ctx context.Context, paymentID uuid.UUID) (int64, error)
}
