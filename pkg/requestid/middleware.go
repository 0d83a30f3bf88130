package requestid

import (
	"net/http"

	"github.com/google/uuid"
)

// Header is the request-id header read from and echoed back to the client.
const Header = "X-Request-ID"

const maxIDLength = 128

// Middleware propagates the caller's request id, or mints a fresh UUID when
// the header is missing or malformed. The id ends up on the response header
// and on the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !validID(id) {
			id = uuid.New().String()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

// validID accepts ids of [A-Za-z0-9_-]{1,128}; anything else is replaced
// rather than propagated into logs.
func validID(id string) bool {
	if len(id) == 0 || len(id) > maxIDLength {
		return false
	}
	for _, c := range []byte(id) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
