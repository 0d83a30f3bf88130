package paygate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrSecretKeyRequired is returned by New when no credential is configured.
var ErrSecretKeyRequired = errors.New("paygate: secret key is required")

// Provider error codes the client normalizes against. Codes outside this
// list still round-trip through Error.Code untouched.
const (
	CodeInvalidCardExpiration   = "INVALID_CARD_EXPIRATION"
	CodeStoppedCard             = "INVALID_STOPPED_CARD"
	CodeLostOrStolenCard        = "INVALID_CARD_LOST_OR_STOLEN"
	CodeRejectedByCardCompany   = "REJECT_CARD_COMPANY"
	CodeExceedMaxDailyCount     = "EXCEED_MAX_DAILY_PAYMENT_COUNT"
	CodeExceedMaxAmount         = "EXCEED_MAX_PAYMENT_AMOUNT"
	CodeAlreadyProcessedPayment = "ALREADY_PROCESSED_PAYMENT"
	CodeUserCanceled            = "PAY_PROCESS_CANCELED"
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodeNotFoundPayment         = "NOT_FOUND_PAYMENT"
	CodeProviderError           = "PROVIDER_ERROR"
	CodeNetworkError            = "NETWORK_ERROR"
)

// Error is the uniform error type for every gateway failure.
type Error struct {
	// Code is the provider error code, or a synthetic code for transport
	// failures (NETWORK_ERROR) and undecodable 5xx responses (PROVIDER_ERROR).
	Code string

	// Message is the human-readable provider message.
	Message string

	// HTTPStatus is the response status, 0 for transport failures.
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("paygate: %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("paygate: %s: %s", e.Code, e.Message)
}

// Retryable reports whether reattempting the same request may succeed.
// Transport failures and gateway 5xx responses are transient; everything the
// provider rejected with a 4xx is a decision, not an outage.
func (e *Error) Retryable() bool {
	if e.Code == CodeNetworkError {
		return true
	}
	return e.HTTPStatus >= http.StatusInternalServerError
}

// IsRetryable classifies any error from this package. Non-gateway errors
// (context cancellation, wrapped net errors) count as retryable transport
// failures. This is the single classification the retry scheduler and the
// webhook reconciler share.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ge *Error
	if errors.As(err, &ge) {
		return ge.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTerminal reports the complement of IsRetryable for non-nil errors:
// a rejection that must be recorded and never retried.
func IsTerminal(err error) bool {
	return err != nil && !IsRetryable(err)
}

// AsError unwraps err into *Error when the gateway produced it.
func AsError(err error) (*Error, bool) {
	var ge *Error
	ok := errors.As(err, &ge)
	return ge, ok
}
