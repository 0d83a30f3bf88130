package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/ratelimit"
)

func TestKey(t *testing.T) {
	t.Parallel()

	t.Run("short keys kept readable", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "acct_1:refund_request", ratelimit.Key("acct_1", "refund_request"))
	})

	t.Run("distinct pairs produce distinct keys", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, ratelimit.Key("a", "x"), ratelimit.Key("a", "y"))
		assert.NotEqual(t, ratelimit.Key("a", "x"), ratelimit.Key("b", "x"))
	})

	t.Run("overlong keys hashed to fixed length", func(t *testing.T) {
		t.Parallel()
		key := ratelimit.Key(strings.Repeat("a", 100), "checkout")
		assert.Len(t, key, 32)
	})
}

func TestActorAction(t *testing.T) {
	t.Parallel()

	keyFn := ratelimit.ActorAction("checkout", func(r *http.Request) string {
		return r.Header.Get("X-Account-ID")
	})

	t.Run("builds actor-scoped key", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		r.Header.Set("X-Account-ID", "acct_42")
		assert.Equal(t, "acct_42:checkout", keyFn(r))
	})

	t.Run("missing actor skips limiting", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		assert.Empty(t, keyFn(r))
	})
}
