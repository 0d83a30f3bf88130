package refund

import "errors"

var (
	ErrStorageRequired      = errors.New("storage is required")
	ErrPaymentsRequired     = errors.New("payment storage is required")
	ErrGatewayRequired      = errors.New("payment gateway is required")
	ErrBillingRequired      = errors.New("billing service is required")
	ErrEntitlementsRequired = errors.New("entitlement service is required")
	ErrRequestNotFound      = errors.New("refund request not found")
	ErrPolicyRejected       = errors.New("refund rejected by policy")
	ErrNotRefundable        = errors.New("payment has no gateway transaction to refund")
	ErrWrongAccount         = errors.New("payment belongs to another account")
)
