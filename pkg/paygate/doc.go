// Package paygate wraps the payment gateway's HTTPS JSON API behind a small
// client with a uniform error vocabulary.
//
// Four operations are exposed: confirming a one-off charge, canceling
// (refunding) a charge fully or partially, issuing a reusable billing token
// from a short-lived authorization, and charging an existing token. All
// requests carry the secret credential in the Authorization header and honor
// the caller's context.
//
// Every failure is surfaced as *paygate.Error and is classified into exactly
// one of two kinds:
//
//   - retryable: network failures, timeouts and gateway 5xx responses;
//   - terminal: provider rejections (declined, expired or stolen cards,
//     limits exceeded, already-processed payments, user-canceled flows,
//     invalid amounts) that no amount of retrying will fix.
//
// IsRetryable is the single source of truth for this split; both the webhook
// reconciler and the refund retry scheduler depend on it.
package paygate
