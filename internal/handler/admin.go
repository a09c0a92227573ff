package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/service"
)

// AdminHandler serves the moderation queue.
type AdminHandler struct {
	moderation *service.ModerationService
	users      *service.UserService
	logger     *slog.Logger
}

func NewAdminHandler(moderation *service.ModerationService, users *service.UserService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{moderation: moderation, users: users, logger: logger}
}

type adminCheckResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

// HandleCheck tells the frontend whether to show admin controls.
//
// HTTP: GET /api/admin/check
// Auth: Optional (anonymous callers are simply not admins)
func (h *AdminHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	isAdmin, err := h.users.IsAdmin(r.Context(), userID)
	if err != nil {
		h.logger.Error("admin check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, adminCheckResponse{IsAdmin: false})
		return
	}
	writeJSON(w, http.StatusOK, adminCheckResponse{IsAdmin: isAdmin})
}

type toolsResponse struct {
	Tools []model.Tool `json:"tools"`
}

// HandlePending lists tools awaiting moderation.
//
// HTTP: GET /api/admin/tools/pending
// Auth: Admin
func (h *AdminHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	tools, err := h.moderation.ListPending(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toolsResponse{Tools: tools})
}

// HTTP: POST /api/admin/tools/{id}/approve
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.moderation.Approve, "Tool approved.")
}

// HTTP: POST /api/admin/tools/{id}/reject
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.moderation.Reject, "Tool rejected.")
}

func (h *AdminHandler) moderate(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, actorID string, toolID int64) error,
	message string,
) {
	userID, _ := auth.UserIDFromContext(r.Context())

	toolID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || toolID <= 0 {
		writeError(w, h.logger, apperror.ValidationFailed("id", "Invalid tool ID."))
		return
	}

	if err := action(r.Context(), userID, toolID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}
