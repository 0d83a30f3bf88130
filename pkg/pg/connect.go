package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect establishes a PostgreSQL connection pool with bounded retry.
// The delay between attempts doubles after each failure, so the defaults
// (3 attempts, 1s initial interval) wait at most 1s + 2s before giving up.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	connConfig.MaxConns = cfg.MaxOpenConns
	connConfig.MinConns = cfg.MaxIdleConns
	connConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	connConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	connConfig.MaxConnLifetime = cfg.MaxConnLifetime

	delay := cfg.RetryInterval
	for i := 0; i < cfg.RetryAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err != nil {
			continue
		}

		// Verify with an actual ping to catch authentication and permission
		// issues that pool construction alone does not surface.
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			continue
		}

		return pool, nil
	}

	return nil, ErrFailedToOpenDBConnection
}
