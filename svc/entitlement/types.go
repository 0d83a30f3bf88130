package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entitlement is an account's current generation allowance.
type Entitlement struct {
	AccountID           string
	Plan                string
	DailyQuotaRemaining int
	QuotaResetAt        *time.Time // start of the UTC day of the last reset; nil before first touch
	CreditBalance       int64      // never negative
	UpdatedAt           time.Time
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionPurchase          TransactionType = "purchase"
	TransactionSubscriptionGrant TransactionType = "subscription_grant"
	TransactionUsage             TransactionType = "usage"
	TransactionRefund            TransactionType = "refund"
	TransactionExpiry            TransactionType = "expiry"
	TransactionAdminAdjustment   TransactionType = "admin_adjustment"
)

// Transaction is an immutable ledger entry. Amount is signed: credits are
// positive, debits negative. BalanceAfter is the account's running balance
// immediately after this entry; replaying entries in order must reproduce
// the current balance.
type Transaction struct {
	ID               uuid.UUID
	AccountID        string
	Type             TransactionType
	Amount           int64
	BalanceAfter     int64
	Reason           string
	RelatedPaymentID *string
	ExpiresAt        *time.Time
	CreatedAt        time.Time
}

// Entry carries the ledger metadata for a debit or credit.
type Entry struct {
	Type             TransactionType
	Reason           string
	RelatedPaymentID *string
	ExpiresAt        *time.Time
}

// Availability is the outcome of a generation availability check.
type Availability struct {
	CanGenerate    bool
	UseCredits     bool
	DailyRemaining int
	CreditBalance  int64
}

// Storage is the transactional backend for entitlement state. Implementations
// must apply each balance mutation and its ledger entry as one atomic unit
// and must never let the credit balance go negative.
type Storage interface {
	// Get returns the entitlement row, or ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (Entitlement, error)

	// Ensure returns the entitlement row, creating it with the given plan
	// and a full daily quota when it does not exist yet.
	Ensure(ctx context.Context, accountID, plan string, dailyLimit int) (Entitlement, error)

	// SetPlan changes the account's plan and daily limit, clamping the
	// remaining daily quota to the new limit.
	SetPlan(ctx context.Context, accountID, plan string, dailyLimit int) error

	// ResetDailyQuota sets the remaining quota to dailyLimit and records
	// resetAt, but only when the stored quota_reset_at is unset or precedes
	// resetAt. It returns the row as of after the conditional update, so a
	// concurrent reset is absorbed rather than doubling the quota.
	ResetDailyQuota(ctx context.Context, accountID string, dailyLimit int, resetAt time.Time) (Entitlement, error)

	// ConsumeDailyQuota decrements the remaining daily quota when positive,
	// returning the remainder, or ErrQuotaExhausted.
	ConsumeDailyQuota(ctx context.Context, accountID string) (int, error)

	// ApplyDebit subtracts amount from the balance when it covers amount and
	// appends the ledger entry, atomically. Returns the new balance, or
	// ErrInsufficientBalance leaving everything untouched.
	ApplyDebit(ctx context.Context, accountID string, amount int64, entry Entry) (int64, error)

	// ApplyCredit adds amount to the balance and appends the ledger entry,
	// atomically. Returns the new balance.
	ApplyCredit(ctx context.Context, accountID string, amount int64, entry Entry) (int64, error)

	// Transactions returns the account's ledger entries oldest first.
	Transactions(ctx context.Context, accountID string) ([]Transaction, error)
}
