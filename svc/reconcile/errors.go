package reconcile

import "errors"

var (
	ErrEventStorageRequired = errors.New("event storage is required")
	ErrPaymentsRequired     = errors.New("payment storage is required")
	ErrBillingRequired      = errors.New("billing service is required")
	ErrEntitlementsRequired = errors.New("entitlement service is required")
	ErrEventNotFound        = errors.New("event not found")
	ErrMalformedEvent       = errors.New("malformed event payload")
)
