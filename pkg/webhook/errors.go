package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrSignatureMissing     = errors.New("webhook signature header is missing")
	ErrSignatureMismatch    = errors.New("webhook signature mismatch")
)
