// Package reconcile applies asynchronous payment-gateway callbacks to local
// billing state, exactly once per event despite at-least-once delivery.
//
// Every inbound event is persisted to a write-once log before processing;
// setting processed_at is the commit point. A duplicate delivery finds
// processed_at already set and is a no-op, and any processing failure leaves
// the event unprocessed so a later delivery can retry it. Failures never
// propagate past the webhook endpoint; they are recorded on the event for
// operator follow-up.
package reconcile
