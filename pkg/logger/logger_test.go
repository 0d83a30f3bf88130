package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json format with static attrs", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithAttr(slog.String("service", "billingd")),
		)
		log.Info("started")

		rec := decodeRecord(t, &buf)
		assert.Equal(t, "started", rec["msg"])
		assert.Equal(t, "billingd", rec["service"])
	})

	t.Run("environment presets", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithEnvironment("production", "billingd"),
			logger.WithOutput(&buf),
		)

		log.Debug("hidden")
		assert.Empty(t, buf.Bytes())

		log.Info("visible")
		rec := decodeRecord(t, &buf)
		assert.Equal(t, "production", rec["env"])
	})

	t.Run("unknown environment falls back to development", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithEnvironment("local", "billingd"),
			logger.WithOutput(&buf),
		)
		log.Debug("debug visible")
		assert.Contains(t, buf.String(), "env=development")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			logger.New(logger.WithFormat("xml"))
		})
	})

	t.Run("context extractor injects per-record attrs", func(t *testing.T) {
		t.Parallel()

		type ctxKey struct{}
		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
				if v, ok := ctx.Value(ctxKey{}).(string); ok {
					return slog.String("request_id", v), true
				}
				return slog.Attr{}, false
			}),
		)

		log.InfoContext(context.WithValue(context.Background(), ctxKey{}, "req-1"), "with id")
		rec := decodeRecord(t, &buf)
		assert.Equal(t, "req-1", rec["request_id"])

		buf.Reset()
		log.Info("without id")
		rec = decodeRecord(t, &buf)
		assert.NotContains(t, rec, "request_id")
	})
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.Equal(t, "error", logger.Error(errors.New("boom")).Key)

	assert.Equal(t, slog.Attr{}, logger.Errors(nil, nil))
	assert.Equal(t, "errors", logger.Errors(errors.New("a"), nil, errors.New("b")).Key)

	assert.Equal(t, "account_id", logger.AccountID("acct").Key)
	assert.Equal(t, "retry_count", logger.RetryCount(3).Key)
	assert.Equal(t, "event_type", logger.EventType("PAYMENT_STATUS_CHANGED").Key)
}
