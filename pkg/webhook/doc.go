// Package webhook authenticates inbound payment-gateway callbacks.
//
// The gateway signs every delivery with HMAC-SHA256 over the raw request
// body using a shared secret and sends the hex digest in the
// X-Webhook-Signature header. Verification must happen over the exact raw
// bytes before any parsing; re-serializing the JSON would break the digest.
//
// Comparison is constant-time to avoid leaking digest prefixes through
// response timing.
package webhook
