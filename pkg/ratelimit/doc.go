// Package ratelimit bounds the frequency of sensitive operations per
// (actor, action) pair using a sliding time window.
//
// The limiter tracks individual request timestamps within a moving window,
// which is more accurate than fixed-window counting at the cost of storing
// the timestamps. Storage is abstracted behind the Store interface with two
// implementations:
//
//   - RedisStore: shared across processes, backed by a sorted set per key
//     with an atomic check-and-record Lua script. Use in any multi-instance
//     deployment.
//   - MemoryStore: in-process map guarded by a mutex with a background
//     cleanup loop. Safe for concurrent goroutines but NOT shared across
//     processes; selecting it in a multi-instance deployment silently
//     multiplies the effective limit by the instance count.
//
// The backend is selected at startup by configuration presence: services use
// RedisStore when REDIS_URL is configured and fall back to MemoryStore
// otherwise.
//
// # Usage
//
//	store := ratelimit.NewMemoryStore()
//	limiter, err := ratelimit.NewSlidingWindow(store, 5, time.Minute)
//	if err != nil {
//	    return err
//	}
//
//	result, err := limiter.Allow(ctx, ratelimit.Key(accountID, "refund_request"))
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    return fmt.Errorf("retry after %s", result.RetryAfter())
//	}
package ratelimit
