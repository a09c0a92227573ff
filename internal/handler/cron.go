package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/service"
	"github.com/sakif/alternatives/internal/trending"
)

// CronHandler lets an external scheduler trigger trend ingestion.
type CronHandler struct {
	job    trending.Runner
	secret *auth.SecretVerifier
	users  *service.UserService
	logger *slog.Logger
}

func NewCronHandler(job trending.Runner, secret *auth.SecretVerifier, users *service.UserService, logger *slog.Logger) *CronHandler {
	return &CronHandler{job: job, secret: secret, users: users, logger: logger}
}

type ingestResponse struct {
	MessageResponse
	Summary trending.Summary `json:"summary"`
}

// HandleIngestTrends runs one ingestion pass synchronously.
//
// HTTP: GET /api/cron/ingest-trends
// Auth: "Authorization: Bearer <cron secret>" OR a signed-in admin
//
// Mount behind OptionalAuth: the bearer header here is usually the cron
// secret rather than a JWT, and OptionalAuth simply ignores it.
func (h *CronHandler) HandleIngestTrends(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("unauthorized ingestion attempt", slog.String("remoteAddr", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Unauthorized"})
		return
	}

	summary, err := h.job.Run(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		MessageResponse: MessageResponse{
			Success: true,
			Message: "GitHub trends ingestion successful. " + summary.String(),
		},
		Summary: summary,
	})
}

func (h *CronHandler) authorized(r *http.Request) bool {
	if token, ok := auth.BearerToken(r); ok && h.secret.Verify(token) {
		return true
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return false
	}
	isAdmin, err := h.users.IsAdmin(r.Context(), userID)
	if err != nil {
		h.logger.Error("admin check failed", slog.String("userID", userID), slog.String("error", err.Error()))
		return false
	}
	return isAdmin
}
