package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (*ratelimit.Result, error) {
	return nil, errors.New("store down")
}

func (failingLimiter) Status(ctx context.Context, key string) (*ratelimit.Result, error) {
	return nil, errors.New("store down")
}

func (failingLimiter) Reset(ctx context.Context, key string) error {
	return errors.New("store down")
}

func actorHeaderKey(r *http.Request) string {
	return r.Header.Get("X-Account-ID")
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	newHandler := func(limiter ratelimit.Limiter) http.Handler {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		return ratelimit.Middleware(limiter, ratelimit.ActorAction("checkout", actorHeaderKey))(next)
	}

	t.Run("allows under the limit and sets headers", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 2, time.Minute)
		require.NoError(t, err)
		h := newHandler(limiter)

		r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		r.Header.Set("X-Account-ID", "acct_mw")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("rejects over the limit with 429 and Retry-After", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 1, time.Minute)
		require.NoError(t, err)
		h := newHandler(limiter)

		for i, wantCode := range []int{http.StatusOK, http.StatusTooManyRequests} {
			r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
			r.Header.Set("X-Account-ID", "acct_mw2")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, wantCode, w.Code, "request %d", i+1)
		}
	})

	t.Run("fails open on limiter errors", func(t *testing.T) {
		t.Parallel()

		h := newHandler(failingLimiter{})

		r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		r.Header.Set("X-Account-ID", "acct_mw3")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("skips requests without an actor", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 1, time.Minute)
		require.NoError(t, err)
		h := newHandler(limiter)

		for range 3 {
			r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}
