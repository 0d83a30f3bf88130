package billing

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"
)

type subscriptionCheckoutRequest struct {
	PlanID        string `json:"planId" validate:"required"`
	Cycle         string `json:"cycle" validate:"required,oneof=monthly yearly"`
	OrderID       string `json:"orderId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
}

func (m *Module) handleSubscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	var req subscriptionCheckoutRequest
	if !m.decode(w, r, &req) {
		return
	}

	payment, err := m.billing.ConfirmSubscription(r.Context(), billingsvc.ConfirmSubscriptionParams{
		AccountID:     accountID(r),
		PlanID:        req.PlanID,
		Cycle:         billingsvc.BillingCycle(req.Cycle),
		OrderID:       req.OrderID,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paymentResponse(payment))
}

type creditCheckoutRequest struct {
	PackageID     string `json:"packageId" validate:"required"`
	OrderID       string `json:"orderId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
}

func (m *Module) handleCreditCheckout(w http.ResponseWriter, r *http.Request) {
	var req creditCheckoutRequest
	if !m.decode(w, r, &req) {
		return
	}

	payment, err := m.billing.ConfirmCreditPurchase(r.Context(), billingsvc.ConfirmCreditPurchaseParams{
		AccountID:     accountID(r),
		PackageID:     req.PackageID,
		OrderID:       req.OrderID,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, paymentResponse(payment))
}

type cancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"atPeriodEnd"`
}

func (m *Module) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelSubscriptionRequest
	if !m.decode(w, r, &req) {
		return
	}

	sub, err := m.billing.CancelSubscription(r.Context(), accountID(r), req.AtPeriodEnd)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"subscriptionId":    sub.ID,
		"status":            string(sub.Status),
		"cancelAtPeriodEnd": sub.CancelAtPeriodEnd,
		"currentPeriodEnd":  sub.CurrentPeriodEnd,
	})
}

type previewPlanChangeRequest struct {
	PlanID string `json:"planId" validate:"required"`
	Cycle  string `json:"cycle" validate:"required,oneof=monthly yearly"`
}

func (m *Module) handlePreviewPlanChange(w http.ResponseWriter, r *http.Request) {
	var req previewPlanChangeRequest
	if !m.decode(w, r, &req) {
		return
	}

	p, err := m.billing.PreviewPlanChange(r.Context(), accountID(r), req.PlanID, billingsvc.BillingCycle(req.Cycle))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"changeType":      string(p.ChangeType),
		"daysRemaining":   p.DaysRemaining,
		"proratedAmount":  p.ProratedAmount,
		"newPlanAmount":   p.NewPlanAmount,
		"requiresPayment": p.RequiresPayment,
		"effectiveDate":   p.EffectiveDate,
	})
}

type refundRequest struct {
	PaymentID string `json:"paymentId" validate:"required,uuid"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

func (m *Module) handleRefundRequest(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !m.decode(w, r, &req) {
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid payment id")
		return
	}

	request, err := m.refunds.CreateRequest(r.Context(), accountID(r), paymentID, req.Amount, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"requestId":  request.ID,
		"status":     string(request.Status),
		"refundType": string(request.RefundType),
		"amount":     request.RequestedAmount,
	})
}

// decode unmarshals and validates the request body, writing the error
// response itself when the payload is unusable.
func (m *Module) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := m.validate.Struct(dst); err != nil {
		respondServiceError(w, err)
		return false
	}
	return true
}

func paymentResponse(p billingsvc.Payment) map[string]any {
	return map[string]any{
		"paymentId": p.ID,
		"orderId":   p.OrderID,
		"status":    string(p.Status),
		"amount":    p.Amount,
		"paidAt":    p.PaidAt,
	}
}
