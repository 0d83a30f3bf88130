// Package billing mounts the billing HTTP surface: checkout confirmation,
// subscription cancellation, refund requests, the gateway webhook endpoint,
// and the scheduled refund-retry job.
//
// The module assumes an authenticating proxy in front of it; the account
// identity arrives in the X-Account-ID header. Sensitive user entry points
// pass a per-(account, action) rate limiter. The webhook endpoint verifies
// the gateway's HMAC signature, persists the event, and acknowledges with
// 2xx regardless of processing outcome so provider retries never escalate.
package billing
