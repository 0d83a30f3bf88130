package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// postgresStorage implements Storage on PostgreSQL. Balance mutations use
// conditional UPDATE ... RETURNING statements inside a transaction with the
// ledger insert, so the pair commits or rolls back as one unit and the
// balance can never be driven negative by a concurrent debit.
type postgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage returns a Storage backed by the given pool.
func NewPostgresStorage(pool *pgxpool.Pool) Storage {
	return &postgresStorage{pool: pool}
}

func (s *postgresStorage) Get(ctx context.Context, accountID string) (Entitlement, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, plan, daily_quota_remaining, quota_reset_at, credit_balance, updated_at
		FROM account_entitlements
		WHERE account_id = $1`, accountID)
	return scanEntitlement(row)
}

func (s *postgresStorage) Ensure(ctx context.Context, accountID, plan string, dailyLimit int) (Entitlement, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO account_entitlements (account_id, plan, daily_quota_remaining, credit_balance, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (account_id) DO UPDATE SET account_id = EXCLUDED.account_id
		RETURNING account_id, plan, daily_quota_remaining, quota_reset_at, credit_balance, updated_at`,
		accountID, plan, dailyLimit)
	return scanEntitlement(row)
}

func (s *postgresStorage) SetPlan(ctx context.Context, accountID, plan string, dailyLimit int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE account_entitlements
		SET plan = $2,
		    daily_quota_remaining = LEAST(daily_quota_remaining, $3),
		    updated_at = now()
		WHERE account_id = $1`, accountID, plan, dailyLimit)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *postgresStorage) ResetDailyQuota(ctx context.Context, accountID string, dailyLimit int, resetAt time.Time) (Entitlement, error) {
	// The WHERE clause makes the reset idempotent under concurrency: only
	// the first request past the day boundary refills the quota.
	_, err := s.pool.Exec(ctx, `
		UPDATE account_entitlements
		SET daily_quota_remaining = $2, quota_reset_at = $3, updated_at = now()
		WHERE account_id = $1
		  AND (quota_reset_at IS NULL OR quota_reset_at < $3)`,
		accountID, dailyLimit, resetAt)
	if err != nil {
		return Entitlement{}, fmt.Errorf("reset daily quota: %w", err)
	}
	return s.Get(ctx, accountID)
}

func (s *postgresStorage) ConsumeDailyQuota(ctx context.Context, accountID string) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
		UPDATE account_entitlements
		SET daily_quota_remaining = daily_quota_remaining - 1, updated_at = now()
		WHERE account_id = $1 AND daily_quota_remaining > 0
		RETURNING daily_quota_remaining`, accountID).Scan(&remaining)
	if err != nil {
		if pg.IsNotFoundError(err) {
			// Either the account is unknown or the quota is spent;
			// disambiguate with a plain lookup.
			if _, getErr := s.Get(ctx, accountID); getErr != nil {
				return 0, getErr
			}
			return 0, ErrQuotaExhausted
		}
		return 0, fmt.Errorf("consume daily quota: %w", err)
	}
	return remaining, nil
}

func (s *postgresStorage) ApplyDebit(ctx context.Context, accountID string, amount int64, entry Entry) (int64, error) {
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE account_entitlements
			SET credit_balance = credit_balance - $2, updated_at = now()
			WHERE account_id = $1 AND credit_balance >= $2
			RETURNING credit_balance`, accountID, amount).Scan(&balance)
		if err != nil {
			if pg.IsNotFoundError(err) {
				if _, getErr := s.getTx(ctx, tx, accountID); getErr != nil {
					return getErr
				}
				return ErrInsufficientBalance
			}
			return fmt.Errorf("debit balance: %w", err)
		}

		return s.insertEntry(ctx, tx, accountID, -amount, balance, entry)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *postgresStorage) ApplyCredit(ctx context.Context, accountID string, amount int64, entry Entry) (int64, error) {
	var balance int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE account_entitlements
			SET credit_balance = credit_balance + $2, updated_at = now()
			WHERE account_id = $1
			RETURNING credit_balance`, accountID, amount).Scan(&balance)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("credit balance: %w", err)
		}

		return s.insertEntry(ctx, tx, accountID, amount, balance, entry)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *postgresStorage) Transactions(ctx context.Context, accountID string) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, type, amount, balance_after, reason, related_payment_id, expires_at, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.Reason, &t.RelatedPaymentID, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *postgresStorage) insertEntry(ctx context.Context, tx pgx.Tx, accountID string, amount, balanceAfter int64, entry Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_transactions
			(id, account_id, type, amount, balance_after, reason, related_payment_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		uuid.New(), accountID, entry.Type, amount, balanceAfter,
		entry.Reason, entry.RelatedPaymentID, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *postgresStorage) getTx(ctx context.Context, tx pgx.Tx, accountID string) (Entitlement, error) {
	row := tx.QueryRow(ctx, `
		SELECT account_id, plan, daily_quota_remaining, quota_reset_at, credit_balance, updated_at
		FROM account_entitlements
		WHERE account_id = $1`, accountID)
	return scanEntitlement(row)
}

func (s *postgresStorage) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

func scanEntitlement(row pgx.Row) (Entitlement, error) {
	var ent Entitlement
	err := row.Scan(&ent.AccountID, &ent.Plan, &ent.DailyQuotaRemaining,
		&ent.QuotaResetAt, &ent.CreditBalance, &ent.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Entitlement{}, ErrAccountNotFound
		}
		return Entitlement{}, fmt.Errorf("scan entitlement: %w", err)
	}
	return ent, nil
}
