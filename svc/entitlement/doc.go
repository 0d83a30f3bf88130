// Package entitlement tracks what an account is allowed to generate: a
// daily-resetting usage quota plus a durable, purchasable credit balance.
//
// Every balance change goes through the ledger as an atomic pair of
// (balance update, append-only transaction record). The storage contract
// guarantees the pair commits or fails as one unit; a balance that moved
// without its ledger entry is a correctness bug, not a tolerable partial
// outcome. Because of that, the current balance of any account is always
// reproducible by replaying its transaction history, and VerifyLedger
// checks exactly that.
//
// Availability policy: daily quota is consumed first; credits are only
// consulted (and only then reported as UseCredits) once the daily quota is
// exhausted. The quota resets lazily on first touch after the account's UTC
// day boundary.
package entitlement
