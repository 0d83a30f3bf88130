package paygate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client talks to the payment gateway. Construct with New; the zero value is
// unusable because every request requires the secret credential.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
}

// New creates a gateway client from configuration.
func New(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, ErrSecretKeyRequired
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		// Basic auth with the secret as username and empty password, the
		// scheme the gateway documents for server-to-server calls.
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey+":")),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Confirm finalizes a one-off charge previously authorized by the customer.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.post(ctx, "/v1/payments/confirm", req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Cancel refunds a completed charge, fully or partially.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*Transaction, error) {
	var tx Transaction
	path := fmt.Sprintf("/v1/payments/%s/cancel", req.TransactionID)
	if err := c.post(ctx, path, req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// IssueBillingToken exchanges a short-lived authorization key for a reusable
// billing token.
func (c *Client) IssueBillingToken(ctx context.Context, req IssueTokenRequest) (*BillingToken, error) {
	var token BillingToken
	if err := c.post(ctx, "/v1/billing/authorizations/issue", req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// ChargeBillingToken charges an existing billing token.
func (c *Client) ChargeBillingToken(ctx context.Context, req ChargeTokenRequest) (*Transaction, error) {
	var tx Transaction
	path := fmt.Sprintf("/v1/billing/%s", req.Token)
	if err := c.post(ctx, path, req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// gatewayErrorBody is the provider's error envelope.
type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("paygate: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("paygate: build request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Code: CodeNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var gwErr gatewayErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&gwErr); err != nil || gwErr.Code == "" {
			gwErr.Code = CodeProviderError
			gwErr.Message = http.StatusText(resp.StatusCode)
		}
		return &Error{
			Code:       gwErr.Code,
			Message:    gwErr.Message,
			HTTPStatus: resp.StatusCode,
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("paygate: decode response: %w", err)
		}
	}
	return nil
}
