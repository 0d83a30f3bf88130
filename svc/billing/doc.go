// Package billing holds the commerce domain: the plan catalog, the pure
// proration and refund-policy calculators, and the payment and subscription
// records with their storage backends.
//
// The calculators are side-effect free and take every input explicitly, so
// policy decisions are testable without storage or a gateway. The Service
// orchestrates checkout flows: it validates amounts against the catalog,
// confirms the charge through the payment gateway, persists the payment, and
// grants entitlement through the ledger.
package billing
