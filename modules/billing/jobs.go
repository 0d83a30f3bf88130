package billing

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// handleRefundRetry triggers one refund-retry pass. The endpoint is invoked
// on a fixed external schedule and guarded by a static bearer secret: a
// server with no secret configured refuses to run at all rather than
// accepting anyone's invocation.
func (m *Module) handleRefundRetry(w http.ResponseWriter, r *http.Request) {
	if m.cfg.JobSecret == "" {
		m.log.ErrorContext(r.Context(), "refund retry job invoked with no job secret configured")
		respondError(w, http.StatusInternalServerError, "job secret not configured")
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.cfg.JobSecret)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid job credential")
		return
	}

	if err := m.retries.RunOnce(r.Context()); err != nil {
		m.log.ErrorContext(r.Context(), "refund retry run failed",
			slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "retry run failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
