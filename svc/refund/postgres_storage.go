package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// postgresStorage implements Storage on PostgreSQL. ClaimDue uses
// FOR UPDATE SKIP LOCKED inside the claiming update, so concurrent scheduler
// instances never process the same request twice.
type postgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage returns a Storage backed by the given pool.
func NewPostgresStorage(pool *pgxpool.Pool) Storage {
	return &postgresStorage{pool: pool}
}

const requestColumns = `id, payment_id, requested_amount, refund_type, status, retry_count, last_error, next_retry_at, reason, created_at, updated_at`

func (s *postgresStorage) CreateRequest(ctx context.Context, r Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refund_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.PaymentID, r.RequestedAmount, r.RefundType, r.Status,
		r.RetryCount, r.LastError, r.NextRetryAt, r.Reason, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create refund request: %w", err)
	}
	return nil
}

func (s *postgresStorage) Request(ctx context.Context, id uuid.UUID) (Request, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM refund_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (s *postgresStorage) ClaimDue(ctx context.Context, maxRetries, limit int, now, staleBefore time.Time) ([]Request, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE refund_requests
		SET status = 'processing', updated_at = $3
		WHERE id IN (
			SELECT id FROM refund_requests
			WHERE (status IN ('pending', 'failed')
			       AND retry_count < $1
			       AND (next_retry_at IS NULL OR next_retry_at <= $3))
			   OR (status = 'processing' AND updated_at < $4)
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+requestColumns, maxRetries, limit, now, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("claim due refund requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *postgresStorage) UpdateRequest(ctx context.Context, r Request) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refund_requests
		SET status = $2, retry_count = $3, last_error = $4, next_retry_at = $5, updated_at = $6
		WHERE id = $1`,
		r.ID, r.Status, r.RetryCount, r.LastError, r.NextRetryAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update refund request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (s *postgresStorage) Exhausted(ctx context.Context, maxRetries int) ([]Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM refund_requests
		WHERE status IN ('pending', 'failed') AND retry_count >= $1
		ORDER BY created_at`, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("list exhausted refund requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (s *postgresStorage) CompletedTotal(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(requested_amount), 0)
		FROM refund_requests
		WHERE payment_id = $1 AND status = 'completed'`, paymentID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum completed refunds: %w", err)
	}
	return total, nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var requests []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.PaymentID, &r.RequestedAmount, &r.RefundType,
		&r.Status, &r.RetryCount, &r.LastError, &r.NextRetryAt, &r.Reason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("scan refund request: %w", err)
	}
	return r, nil
}
