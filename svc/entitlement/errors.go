package entitlement

import "errors"

var (
	ErrStorageRequired     = errors.New("entitlement: storage is required")
	ErrInvalidAmount       = errors.New("entitlement: amount must be a positive integer")
	ErrInsufficientBalance = errors.New("entitlement: insufficient credit balance")
	ErrAccountNotFound     = errors.New("entitlement: account not found")
	ErrQuotaExhausted      = errors.New("entitlement: daily quota exhausted")
	ErrLedgerMismatch      = errors.New("entitlement: ledger replay does not reconstruct balance")
)
