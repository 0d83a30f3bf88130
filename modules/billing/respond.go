package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/billingkit/pkg/orderid"
	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/entitlement"
	"github.com/dmitrymomot/billingkit/svc/refund"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP statuses: validation and
// policy failures are the caller's fault, everything else is a gateway or
// infrastructure problem.
func respondServiceError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrs),
		errors.Is(err, orderid.ErrInvalidOrderID),
		errors.Is(err, billingsvc.ErrUnknownPlan),
		errors.Is(err, billingsvc.ErrUnknownPackage),
		errors.Is(err, billingsvc.ErrUnsupportedCycle),
		errors.Is(err, billingsvc.ErrAmountMismatch),
		errors.Is(err, entitlement.ErrInvalidAmount):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, billingsvc.ErrSubscriptionExists),
		errors.Is(err, billingsvc.ErrDuplicateOrderID):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, refund.ErrPolicyRejected),
		errors.Is(err, refund.ErrNotRefundable),
		errors.Is(err, entitlement.ErrInsufficientBalance):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, billingsvc.ErrPaymentNotFound),
		errors.Is(err, billingsvc.ErrSubscriptionNotFound),
		errors.Is(err, entitlement.ErrAccountNotFound),
		errors.Is(err, refund.ErrWrongAccount):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusBadGateway, "payment processing failed")
	}
}
