package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// maxKeyLength bounds storage key size to keep Redis keys reasonable.
const maxKeyLength = 64

// Key builds the storage key for an (actor, action) pair. Limits are scoped
// to the pair: the same actor performing a different action, or a different
// actor performing the same action, counts against a separate window.
// Overlong keys are hashed to a fixed 32-hex-char form.
func Key(actor, action string) string {
	combined := actor + ":" + action
	if len(combined) > maxKeyLength {
		hash := sha256.Sum256([]byte(combined))
		// 128 bits is plenty of collision resistance for limiter keys
		return hex.EncodeToString(hash[:16])
	}
	return combined
}

// KeyFunc extracts a rate limit key from an HTTP request.
// Returning an empty string skips rate limiting for the request.
type KeyFunc func(*http.Request) string

// ActorAction builds a KeyFunc that scopes the limit to a fixed action and a
// per-request actor (typically the authenticated account id).
func ActorAction(action string, actor func(*http.Request) string) KeyFunc {
	return func(r *http.Request) string {
		a := strings.TrimSpace(actor(r))
		if a == "" {
			return ""
		}
		return Key(a, action)
	}
}
