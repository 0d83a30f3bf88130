package billing

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// maxWebhookBody bounds inbound callback size; gateway events are small.
const maxWebhookBody = 1 << 20

// handleWebhook receives gateway callbacks. The contract with the provider:
// 401 for a signature that does not verify, 2xx once the payload is durably
// logged, no matter how processing went. Returning an error status for a
// processing failure would only trigger a provider retry storm against an
// event we already have on disk.
func (m *Module) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := webhook.VerifyRequest(m.cfg.WebhookSecret, body, r.Header); err != nil {
		m.log.WarnContext(r.Context(), "webhook signature rejected",
			slog.Any("error", err))
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := m.reconciler.Process(r.Context(), body); err != nil {
		// Logged for operator follow-up; the event stays unprocessed and a
		// redelivery can retry it.
		m.log.ErrorContext(r.Context(), "webhook processing failed",
			slog.Any("error", err))
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// handleWebhookLiveness answers the provider's endpoint health probe.
func (m *Module) handleWebhookLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
