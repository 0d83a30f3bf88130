package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStorage is an in-memory Storage used in tests and local development.
// A single mutex makes every mutation atomic, mirroring the row-level
// atomicity the Postgres implementation gets from conditional updates.
type memoryStorage struct {
	mu       sync.Mutex
	accounts map[string]*Entitlement
	ledger   map[string][]Transaction
}

// NewMemoryStorage returns an empty in-memory Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		accounts: make(map[string]*Entitlement),
		ledger:   make(map[string][]Transaction),
	}
}

func (m *memoryStorage) Get(ctx context.Context, accountID string) (Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.accounts[accountID]
	if !ok {
		return Entitlement{}, ErrAccountNotFound
	}
	return *ent, nil
}

func (m *memoryStorage) Ensure(ctx context.Context, accountID, plan string, dailyLimit int) (Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ent, ok := m.accounts[accountID]; ok {
		return *ent, nil
	}

	ent := &Entitlement{
		AccountID:           accountID,
		Plan:                plan,
		DailyQuotaRemaining: dailyLimit,
		UpdatedAt:           time.Now().UTC(),
	}
	m.accounts[accountID] = ent
	return *ent, nil
}

func (m *memoryStorage) SetPlan(ctx context.Context, accountID, plan string, dailyLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}

	ent.Plan = plan
	if ent.DailyQuotaRemaining > dailyLimit {
		ent.DailyQuotaRemaining = dailyLimit
	}
	ent.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryStorage) ResetDailyQuota(ctx context.Context, accountID string, dailyLimit int, resetAt time.Time) (Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.accounts[accountID]
	if !ok {
		return Entitlement{}, ErrAccountNotFound
	}

	// Conditional: a concurrent reset that already advanced the marker wins.
	if ent.QuotaResetAt == nil || ent.QuotaResetAt.Before(resetAt) {
		ent.DailyQuotaRemaining = dailyLimit
		ent.QuotaResetAt = &resetAt
		ent.UpdatedAt = time.Now().UTC()
	}
	return *ent, nil
}

func (m *memoryStorage) ConsumeDailyQuota(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if ent.DailyQuotaRemaining <= 0 {
		return 0, ErrQuotaExhausted
	}

	ent.DailyQuotaRemaining--
	ent.UpdatedAt = time.Now().UTC()
	return ent.DailyQuotaRemaining, nil
}

func (m *memoryStorage) ApplyDebit(ctx context.Context, accountID string, amount int64, entry Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if ent.CreditBalance < amount {
		return 0, ErrInsufficientBalance
	}

	ent.CreditBalance -= amount
	ent.UpdatedAt = time.Now().UTC()
	m.appendEntry(accountID, -amount, ent.CreditBalance, entry)
	return ent.CreditBalance, nil
}

func (m *memoryStorage) ApplyCredit(ctx context.Context, accountID string, amount int64, entry Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ent, ok := m.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}

	ent.CreditBalance += amount
	ent.UpdatedAt = time.Now().UTC()
	m.appendEntry(accountID, amount, ent.CreditBalance, entry)
	return ent.CreditBalance, nil
}

func (m *memoryStorage) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := m.ledger[accountID]
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

// appendEntry must be called with the mutex held.
func (m *memoryStorage) appendEntry(accountID string, amount, balanceAfter int64, entry Entry) {
	m.ledger[accountID] = append(m.ledger[accountID], Transaction{
		ID:               uuid.New(),
		AccountID:        accountID,
		Type:             entry.Type,
		Amount:           amount,
		BalanceAfter:     balanceAfter,
		Reason:           entry.Reason,
		RelatedPaymentID: entry.RelatedPaymentID,
		ExpiresAt:        entry.ExpiresAt,
		CreatedAt:        time.Now().UTC(),
	})
}
