// Package billingkit is a billing and entitlement reconciliation engine for
// subscription and credit commerce backends.
//
// The repository is organized in three layers:
//
//   - pkg/ holds reusable infrastructure: the payment gateway client
//     (paygate), order-id generation (orderid), webhook signature
//     verification (webhook), the sliding-window rate limiter (ratelimit),
//     and the pg/redis/logger/httpserver plumbing.
//
//   - svc/ holds the domain services: the entitlement ledger (entitlement),
//     plans, proration and refund policy (billing), webhook reconciliation
//     (reconcile), and refund request processing with retries (refund).
//
//   - modules/ composes the services into mountable chi routers; cmd/billingd
//     wires a complete daemon.
//
// Money is handled in currency minor units throughout. Every externally
// triggered mutation (checkout confirmation, webhook delivery, refund retry)
// is idempotent: order ids correlate charges, webhook events are logged
// write-once keyed by payload hash, and credit grants are guarded by payment
// status transitions.
package billingkit
