package refund

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/paygate"
	"github.com/dmitrymomot/billingkit/svc/billing"
)

// Gateway is the cancel surface of the payment gateway. *paygate.Client
// satisfies it.
type Gateway interface {
	Cancel(ctx context.Context, req paygate.CancelRequest) (*paygate.Transaction, error)
}

// Compensator reverses entitlement granted by a refunded payment.
// *billing.Service satisfies it.
type Compensator interface {
	CompensateRefund(ctx context.Context, payment billing.Payment, refundedAmount int64) error
}

// SchedulerConfig bounds a scheduler run.
type SchedulerConfig struct {
	// MaxRetries is how many retryable failures a request survives before it
	// needs operator attention.
	MaxRetries int `env:"REFUND_MAX_RETRIES" envDefault:"5"`
	// BatchSize caps how many requests one tick claims.
	BatchSize int `env:"REFUND_BATCH_SIZE" envDefault:"20"`
	// RunDeadline bounds a single RunOnce; remaining work is abandoned for
	// the next tick rather than overrunning the invoker's schedule. It also
	// bounds claim staleness: a request stuck in processing longer than this
	// was abandoned by a crashed run and is reclaimed.
	RunDeadline time.Duration `env:"REFUND_RUN_DEADLINE" envDefault:"5m"`
	// RetryBaseDelay is the backoff after the first retryable failure; each
	// further failure doubles it up to RetryMaxDelay.
	RetryBaseDelay time.Duration `env:"REFUND_RETRY_BASE_DELAY" envDefault:"1m"`
	// RetryMaxDelay caps the backoff growth.
	RetryMaxDelay time.Duration `env:"REFUND_RETRY_MAX_DELAY" envDefault:"1h"`
}

// Scheduler re-drives due refund requests against the gateway on each tick.
type Scheduler struct {
	storage  Storage
	payments billing.Storage
	gateway  Gateway
	billing  Compensator
	cfg      SchedulerConfig
	log      *slog.Logger
	now      func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the structured logger.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSchedulerClock overrides the time source for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates the refund retry scheduler.
func NewScheduler(storage Storage, payments billing.Storage, gateway Gateway, billingSvc Compensator, cfg SchedulerConfig, opts ...SchedulerOption) (*Scheduler, error) {
	switch {
	case storage == nil:
		return nil, ErrStorageRequired
	case payments == nil:
		return nil, ErrPaymentsRequired
	case gateway == nil:
		return nil, ErrGatewayRequired
	case billingSvc == nil:
		return nil, ErrBillingRequired
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 5 * time.Minute
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Minute
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = time.Hour
	}

	s := &Scheduler{
		storage:  storage,
		payments: payments,
		gateway:  gateway,
		billing:  billingSvc,
		cfg:      cfg,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce claims due requests and drives each against the gateway, stopping
// early when the run deadline passes. Per-request failures are isolated; one
// bad request never blocks the rest of the batch.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunDeadline)
	defer cancel()

	s.reportExhausted(ctx)

	now := s.now().UTC()
	requests, err := s.storage.ClaimDue(ctx, s.cfg.MaxRetries, s.cfg.BatchSize,
		now, now.Add(-s.cfg.RunDeadline))
	if err != nil {
		return err
	}

	for _, req := range requests {
		if ctx.Err() != nil {
			// Out of time: release the claim and leave the rest for the
			// next tick.
			s.release(req)
			continue
		}
		s.process(ctx, req)
	}
	return nil
}

func (s *Scheduler) process(ctx context.Context, req Request) {
	payment, err := s.payments.Payment(ctx, req.PaymentID)
	if err != nil {
		s.retryLater(ctx, req, err)
		return
	}
	if payment.GatewayTransactionID == nil {
		s.reject(ctx, req, ErrNotRefundable)
		return
	}

	cancelReq := paygate.CancelRequest{
		TransactionID: *payment.GatewayTransactionID,
		Reason:        req.Reason,
	}
	if req.RequestedAmount < payment.Amount {
		amount := req.RequestedAmount
		cancelReq.Amount = &amount
	}

	if _, err := s.gateway.Cancel(ctx, cancelReq); err != nil {
		if paygate.IsRetryable(err) {
			s.retryLater(ctx, req, err)
		} else {
			s.reject(ctx, req, err)
		}
		return
	}

	s.settle(ctx, req, payment)
}

// settle applies the refund locally: the payment status flips to refunded or
// partial_refunded, granted entitlement is compensated, and the request
// completes.
func (s *Scheduler) settle(ctx context.Context, req Request, payment billing.Payment) {
	now := s.now().UTC()

	refundedTotal, err := s.storage.CompletedTotal(ctx, payment.ID)
	if err != nil {
		s.retryLater(ctx, req, err)
		return
	}

	status := billing.PaymentPartialRefunded
	if refundedTotal+req.RequestedAmount >= payment.Amount {
		status = billing.PaymentRefunded
	}
	payment.Status = status
	payment.UpdatedAt = now
	if err := s.payments.UpdatePayment(ctx, payment); err != nil {
		s.retryLater(ctx, req, err)
		return
	}

	if err := s.billing.CompensateRefund(ctx, payment, req.RequestedAmount); err != nil {
		s.retryLater(ctx, req, err)
		return
	}

	req.Status = StatusCompleted
	req.LastError = nil
	req.NextRetryAt = nil
	req.UpdatedAt = now
	if err := s.storage.UpdateRequest(ctx, req); err != nil {
		s.log.ErrorContext(ctx, "refund settled but request update failed",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err))
		return
	}

	s.log.InfoContext(ctx, "refund completed",
		slog.String("request_id", req.ID.String()),
		slog.String("payment_id", payment.ID.String()),
		slog.Int64("amount", req.RequestedAmount))
}

// retryLater records a retryable failure: the retry count goes up, the
// request returns to failed status, and the backoff deadline doubles with
// every failure up to the configured cap.
func (s *Scheduler) retryLater(ctx context.Context, req Request, cause error) {
	now := s.now().UTC()
	msg := cause.Error()
	req.Status = StatusFailed
	req.RetryCount++
	req.LastError = &msg
	next := now.Add(s.backoff(req.RetryCount))
	req.NextRetryAt = &next
	req.UpdatedAt = now
	if err := s.storage.UpdateRequest(ctx, req); err != nil {
		s.log.ErrorContext(ctx, "updating refund request failed",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err))
		return
	}

	s.log.WarnContext(ctx, "refund attempt failed, will retry",
		slog.String("request_id", req.ID.String()),
		slog.Int("retry_count", req.RetryCount),
		slog.Time("next_retry_at", next),
		slog.String("error", msg))
}

// backoff returns the delay before attempt retryCount+1: base after the
// first failure, doubled per failure, never above the cap.
func (s *Scheduler) backoff(retryCount int) time.Duration {
	delay := s.cfg.RetryBaseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= s.cfg.RetryMaxDelay {
			return s.cfg.RetryMaxDelay
		}
	}
	if delay > s.cfg.RetryMaxDelay {
		return s.cfg.RetryMaxDelay
	}
	return delay
}

// reject ends the request permanently on a terminal gateway rejection.
func (s *Scheduler) reject(ctx context.Context, req Request, cause error) {
	msg := cause.Error()
	req.Status = StatusRejected
	req.LastError = &msg
	req.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateRequest(ctx, req); err != nil {
		s.log.ErrorContext(ctx, "updating refund request failed",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err))
		return
	}

	s.log.InfoContext(ctx, "refund rejected terminally",
		slog.String("request_id", req.ID.String()),
		slog.String("error", msg))
}

// release puts an unprocessed claim back to failed without counting a retry.
func (s *Scheduler) release(req Request) {
	// The run context is already past its deadline; the release must still
	// go through.
	ctx := context.Background()
	req.Status = StatusFailed
	req.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateRequest(ctx, req); err != nil {
		s.log.Error("releasing claimed refund request failed",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err))
	}
}

// reportExhausted surfaces requests that burned through their retry budget;
// they need an operator, not another tick.
func (s *Scheduler) reportExhausted(ctx context.Context) {
	exhausted, err := s.storage.Exhausted(ctx, s.cfg.MaxRetries)
	if err != nil {
		s.log.ErrorContext(ctx, "listing exhausted refund requests failed",
			slog.Any("error", err))
		return
	}
	for _, req := range exhausted {
		lastErr := ""
		if req.LastError != nil {
			lastErr = *req.LastError
		}
		s.log.ErrorContext(ctx, "refund request exhausted retry budget, manual intervention required",
			slog.String("request_id", req.ID.String()),
			slog.String("payment_id", req.PaymentID.String()),
			slog.Int("retry_count", req.RetryCount),
			slog.String("last_error", lastErr))
	}
}
