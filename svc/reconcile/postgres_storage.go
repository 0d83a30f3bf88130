package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// postgresStorage implements the event log on PostgreSQL. The insert is
// idempotent via ON CONFLICT DO NOTHING, and MarkProcessed is a conditional
// update on processed_at IS NULL, which makes it the single-writer commit
// point under concurrent deliveries.
type postgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage returns an event log backed by the given pool.
func NewPostgresStorage(pool *pgxpool.Pool) Storage {
	return &postgresStorage{pool: pool}
}

func (s *postgresStorage) LogEvent(ctx context.Context, rec EventRecord) (EventRecord, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (id, event_type, raw_payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.EventType, rec.RawPayload, rec.ReceivedAt)
	if err != nil {
		return EventRecord{}, fmt.Errorf("log event: %w", err)
	}
	return s.Event(ctx, rec.ID)
}

func (s *postgresStorage) ClaimEvent(ctx context.Context, id string, at time.Time, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET claimed_at = $2
		WHERE id = $1
		  AND processed_at IS NULL
		  AND (claimed_at IS NULL OR claimed_at < $3)`,
		id, at, at.Add(-ttl))
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStorage) ReleaseEvent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events SET claimed_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release event claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *postgresStorage) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processed_at = $2, claimed_at = NULL, error = NULL
		WHERE id = $1 AND processed_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStorage) RecordError(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events SET error = $2 WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("record event error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *postgresStorage) Event(ctx context.Context, id string) (EventRecord, error) {
	var rec EventRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, event_type, raw_payload, processed_at, claimed_at, error, received_at
		FROM webhook_events
		WHERE id = $1`, id).
		Scan(&rec.ID, &rec.EventType, &rec.RawPayload, &rec.ProcessedAt, &rec.ClaimedAt, &rec.Error, &rec.ReceivedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return EventRecord{}, ErrEventNotFound
		}
		return EventRecord{}, fmt.Errorf("get event: %w", err)
	}
	return rec, nil
}
