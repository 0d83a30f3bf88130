package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the rate limit window resets.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter is the interface request handlers depend on. Handlers receive an
// explicitly-owned limiter instance rather than reaching for package state,
// which keeps them unit-testable and prevents cross-test leakage.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key,
	// consuming one slot when it is.
	Allow(ctx context.Context, key string) (*Result, error)

	// Status returns the current state for the key without consuming a slot.
	Status(ctx context.Context, key string) (*Result, error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Store is the storage backend for sliding window state.
type Store interface {
	// RecordIfAllowed atomically checks whether recording n timestamps at
	// now keeps the key within limit, records them when it does, and
	// returns whether they were recorded along with the resulting count of
	// timestamps inside the window.
	RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (allowed bool, count int64, err error)

	// CountInWindow returns the number of timestamps within the window.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Delete removes all state for the given key.
	Delete(ctx context.Context, key string) error
}
