package paygate

import "time"

// Transaction is the gateway's view of a charge or cancellation.
type Transaction struct {
	TransactionID string     `json:"transactionId"`
	OrderID       string     `json:"orderId"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
}

// ConfirmRequest finalizes a charge the customer authorized in-browser.
type ConfirmRequest struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
}

// CancelRequest cancels (refunds) a completed charge. A nil Amount cancels
// the full remaining amount; a value cancels partially.
type CancelRequest struct {
	TransactionID string `json:"transactionId"`
	Reason        string `json:"cancelReason"`
	Amount        *int64 `json:"cancelAmount,omitempty"`
}

// IssueTokenRequest exchanges a short-lived authorization for a reusable
// billing token bound to the customer.
type IssueTokenRequest struct {
	AuthKey     string `json:"authKey"`
	CustomerKey string `json:"customerKey"`
}

// BillingToken is a reusable charge credential for recurring payments.
type BillingToken struct {
	Token       string    `json:"billingKey"`
	CustomerKey string    `json:"customerKey"`
	CardSummary string    `json:"cardSummary"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// ChargeTokenRequest charges an existing billing token.
type ChargeTokenRequest struct {
	Token       string `json:"billingKey"`
	CustomerKey string `json:"customerKey"`
	OrderID     string `json:"orderId"`
	OrderName   string `json:"orderName"`
	Amount      int64  `json:"amount"`
}
