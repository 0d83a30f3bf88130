package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DailyLimits resolves a plan identifier to its configured daily generation
// limit. Unknown plans fall back to the free tier.
type DailyLimits func(plan string) int

// Service is the entitlement ledger. All quota and credit mutations in the
// system go through it; request handlers never write entitlement state
// directly.
type Service struct {
	storage Storage
	limits  DailyLimits
	log     *slog.Logger
	now     func() time.Time
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

// WithClock overrides the time source, used by tests exercising the daily
// reset boundary.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the entitlement ledger service.
func NewService(storage Storage, limits DailyLimits, opts ...Option) (*Service, error) {
	if storage == nil {
		return nil, ErrStorageRequired
	}
	if limits == nil {
		limits = func(string) int { return 0 }
	}

	s := &Service{
		storage: storage,
		limits:  limits,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckGenerationAvailability is the pure availability policy: daily quota
// first, credits only once the quota is gone.
func CheckGenerationAvailability(dailyRemaining int, creditBalance int64) Availability {
	a := Availability{
		DailyRemaining: dailyRemaining,
		CreditBalance:  creditBalance,
	}
	switch {
	case dailyRemaining > 0:
		a.CanGenerate = true
	case creditBalance > 0:
		a.CanGenerate = true
		a.UseCredits = true
	}
	return a
}

// Ensure creates the account's entitlement row on first contact.
func (s *Service) Ensure(ctx context.Context, accountID, plan string) (Entitlement, error) {
	return s.storage.Ensure(ctx, accountID, plan, s.limits(plan))
}

// Availability resolves the account's current availability, lazily resetting
// the daily quota when the stored reset marker precedes today.
func (s *Service) Availability(ctx context.Context, accountID string) (Availability, error) {
	ent, err := s.refreshed(ctx, accountID)
	if err != nil {
		return Availability{}, err
	}
	return CheckGenerationAvailability(ent.DailyQuotaRemaining, ent.CreditBalance), nil
}

// ConsumeGeneration spends one unit of allowance for a generation request:
// one unit of daily quota when any remains, otherwise one credit debited
// through the ledger. Returns the availability that was acted on.
func (s *Service) ConsumeGeneration(ctx context.Context, accountID string) (Availability, error) {
	ent, err := s.refreshed(ctx, accountID)
	if err != nil {
		return Availability{}, err
	}

	a := CheckGenerationAvailability(ent.DailyQuotaRemaining, ent.CreditBalance)
	if !a.CanGenerate {
		return a, ErrQuotaExhausted
	}

	if !a.UseCredits {
		remaining, err := s.storage.ConsumeDailyQuota(ctx, accountID)
		if err != nil {
			return a, err
		}
		a.DailyRemaining = remaining
		return a, nil
	}

	balance, err := s.Debit(ctx, accountID, 1, TransactionUsage, "generation", nil)
	if err != nil {
		return a, err
	}
	a.CreditBalance = balance
	return a, nil
}

// Debit removes amount credits from the account. The balance update and the
// ledger entry commit atomically; over-debiting returns
// ErrInsufficientBalance and leaves the balance unchanged.
func (s *Service) Debit(ctx context.Context, accountID string, amount int64, typ TransactionType, reason string, relatedPaymentID *string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	balance, err := s.storage.ApplyDebit(ctx, accountID, amount, Entry{
		Type:             typ,
		Reason:           reason,
		RelatedPaymentID: relatedPaymentID,
	})
	if err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "credits debited",
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("type", string(typ)),
		slog.Int64("balance_after", balance))

	return balance, nil
}

// Credit adds amount credits to the account, optionally bound to the payment
// that granted them and an expiry timestamp.
func (s *Service) Credit(ctx context.Context, accountID string, amount int64, typ TransactionType, reason string, relatedPaymentID *string, expiresAt *time.Time) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	balance, err := s.storage.ApplyCredit(ctx, accountID, amount, Entry{
		Type:             typ,
		Reason:           reason,
		RelatedPaymentID: relatedPaymentID,
		ExpiresAt:        expiresAt,
	})
	if err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "credits granted",
		slog.String("account_id", accountID),
		slog.Int64("amount", amount),
		slog.String("type", string(typ)),
		slog.Int64("balance_after", balance))

	return balance, nil
}

// Balance returns the current credit balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	ent, err := s.storage.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return ent.CreditBalance, nil
}

// ChangePlan moves the account to a different plan, clamping the remaining
// daily quota to the new plan's limit. Used by the reconciler when a
// subscription payment is refunded or canceled.
func (s *Service) ChangePlan(ctx context.Context, accountID, plan string) error {
	return s.storage.SetPlan(ctx, accountID, plan, s.limits(plan))
}

// VerifyLedger replays the account's transaction history and checks both
// that every entry's BalanceAfter matches the running balance and that the
// final running balance equals the stored credit balance.
func (s *Service) VerifyLedger(ctx context.Context, accountID string) error {
	ent, err := s.storage.Get(ctx, accountID)
	if err != nil {
		return err
	}

	txs, err := s.storage.Transactions(ctx, accountID)
	if err != nil {
		return err
	}

	var running int64
	for _, tx := range txs {
		running += tx.Amount
		if tx.BalanceAfter != running {
			return fmt.Errorf("%w: entry %s has balance_after=%d, replay gives %d",
				ErrLedgerMismatch, tx.ID, tx.BalanceAfter, running)
		}
	}

	if running != ent.CreditBalance {
		return fmt.Errorf("%w: replay gives %d, stored balance is %d",
			ErrLedgerMismatch, running, ent.CreditBalance)
	}

	return nil
}

// refreshed loads the entitlement, applying the lazy daily reset when the
// stored marker is unset or precedes the start of today (UTC).
func (s *Service) refreshed(ctx context.Context, accountID string) (Entitlement, error) {
	ent, err := s.storage.Get(ctx, accountID)
	if err != nil {
		return Entitlement{}, err
	}

	today := startOfDayUTC(s.now())
	if ent.QuotaResetAt == nil || ent.QuotaResetAt.Before(today) {
		ent, err = s.storage.ResetDailyQuota(ctx, accountID, s.limits(ent.Plan), today)
		if err != nil {
			return Entitlement{}, err
		}
	}

	return ent, nil
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
