package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/service"
)

// WebhookHandler receives user lifecycle events from the identity provider.
type WebhookHandler struct {
	verifier auth.WebhookVerifier // nil when no signing secret is configured
	users    *service.UserService
	logger   *slog.Logger
}

func NewWebhookHandler(verifier auth.WebhookVerifier, users *service.UserService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, users: users, logger: logger}
}

// HandleIdentity verifies and applies one event.
//
// HTTP: POST /api/webhooks/identity
//
// RESPONSES:
//   - 500 when the server has no signing secret (misconfiguration, the
//     provider should retry once it is fixed)
//   - 400 on missing headers or a bad signature
//   - 200 for every verified event, even one we fail to apply. A retry
//     would fail the same way, so the failure is logged instead.
func (h *WebhookHandler) HandleIdentity(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		h.logger.Error("identity webhook received but no webhook secret is configured")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Webhook secret not configured.",
		})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "Could not read body."})
		return
	}

	event, err := h.verifier.Verify(payload, r.Header)
	if err != nil {
		message := "Invalid signature."
		if errors.Is(err, auth.ErrMissingWebhookHeaders) {
			message = "Missing signature headers."
		}
		h.logger.Warn("rejected identity webhook", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: message})
		return
	}

	if err := h.users.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to apply identity event",
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
	}

	writeMessage(w, http.StatusOK, "Webhook received.")
}
