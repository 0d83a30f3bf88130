// Package redis provides Redis connectivity helpers built on go-redis/v9.
//
// The shared counter store backing the rate limiter is optional: services
// check for a configured REDIS_URL at startup and fall back to in-process
// counters when it is absent. Connect therefore retries within a bounded
// window and reports a single sentinel error when Redis never becomes ready,
// letting callers decide whether that is fatal.
package redis
