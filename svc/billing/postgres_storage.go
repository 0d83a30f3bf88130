package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// postgresStorage implements Storage on PostgreSQL. The partial unique index
// on (account_id) WHERE status IN ('trialing','active') enforces the
// one-active-subscription invariant at the database level.
type postgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage returns a Storage backed by the given pool.
func NewPostgresStorage(pool *pgxpool.Pool) Storage {
	return &postgresStorage{pool: pool}
}

const paymentColumns = `id, account_id, order_id, gateway_transaction_id, kind, status, amount, metadata, paid_at, created_at, updated_at`

func (s *postgresStorage) CreatePayment(ctx context.Context, p Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.AccountID, p.OrderID, p.GatewayTransactionID, p.Kind, p.Status,
		p.Amount, p.Metadata, p.PaidAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrDuplicateOrderID
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (s *postgresStorage) Payment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (s *postgresStorage) PaymentByOrderID(ctx context.Context, orderID string) (Payment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	return scanPayment(row)
}

func (s *postgresStorage) PaymentByGatewayTransactionID(ctx context.Context, txID string) (Payment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_transaction_id = $1`, txID)
	return scanPayment(row)
}

func (s *postgresStorage) UpdatePayment(ctx context.Context, p Payment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, gateway_transaction_id = $3, paid_at = $4, updated_at = $5
		WHERE id = $1`,
		p.ID, p.Status, p.GatewayTransactionID, p.PaidAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

const subscriptionColumns = `id, account_id, plan, billing_cycle, status, current_period_start, current_period_end, cancel_at_period_end, canceled_at, created_at, updated_at`

func (s *postgresStorage) CreateSubscription(ctx context.Context, sub Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.AccountID, sub.Plan, sub.BillingCycle, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CanceledAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *postgresStorage) ActiveSubscription(ctx context.Context, accountID string) (Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND status IN ('trialing', 'active')`, accountID)
	return scanSubscription(row)
}

func (s *postgresStorage) UpdateSubscription(ctx context.Context, sub Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan = $2, billing_cycle = $3, status = $4, current_period_start = $5,
		    current_period_end = $6, cancel_at_period_end = $7, canceled_at = $8, updated_at = $9
		WHERE id = $1`,
		sub.ID, sub.Plan, sub.BillingCycle, sub.Status, sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CanceledAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.AccountID, &p.OrderID, &p.GatewayTransactionID,
		&p.Kind, &p.Status, &p.Amount, &p.Metadata, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.AccountID, &sub.Plan, &sub.BillingCycle,
		&sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Subscription{}, ErrSubscriptionNotFound
		}
		return Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	return sub, nil
}
