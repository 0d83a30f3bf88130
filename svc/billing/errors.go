package billing

import "errors"

var (
	ErrStorageRequired       = errors.New("storage is required")
	ErrCatalogRequired       = errors.New("plan catalog is required")
	ErrGatewayRequired       = errors.New("payment gateway is required")
	ErrEntitlementsRequired  = errors.New("entitlement service is required")
	ErrUnknownPlan           = errors.New("unknown plan")
	ErrUnknownPackage        = errors.New("unknown credit package")
	ErrUnsupportedCycle      = errors.New("plan does not support billing cycle")
	ErrAmountMismatch        = errors.New("amount does not match catalog price")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrDuplicateOrderID      = errors.New("order id already used")
	ErrSubscriptionExists    = errors.New("account already has an active subscription")
	ErrSubscriptionNotActive = errors.New("subscription is not active")
	ErrInvalidPeriod         = errors.New("period end must follow period start")
)
