package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// SignatureHeader is the header carrying the hex HMAC-SHA256 digest of the
// raw request body.
const SignatureHeader = "X-Webhook-Signature"

// Sign computes the hex HMAC-SHA256 digest of payload under secret.
// Used by tests and by outbound delivery simulation.
func Sign(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that signature is the HMAC-SHA256 digest of payload under
// secret using a constant-time comparison.
func Verify(secret string, payload []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	if signature == "" {
		return ErrSignatureMissing
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}

	return nil
}

// VerifyRequest verifies the signature header of an already-read request
// body. The body must be the exact raw bytes received on the wire.
func VerifyRequest(secret string, body []byte, header http.Header) error {
	return Verify(secret, body, header.Get(SignatureHeader))
}
