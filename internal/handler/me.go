package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/service"
)

// MeHandler serves the signed-in user's own pages.
type MeHandler struct {
	users  *service.UserService
	tools  *service.ToolService
	logger *slog.Logger
}

func NewMeHandler(users *service.UserService, tools *service.ToolService, logger *slog.Logger) *MeHandler {
	return &MeHandler{users: users, tools: tools, logger: logger}
}

// HandleProfile returns the mirror record, admin flag and activity counts.
//
// HTTP: GET /api/me
// Auth: Required
func (h *MeHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	profile, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleTools lists every tool the caller suggested, whatever its status.
//
// HTTP: GET /api/me/tools
// Auth: Required
func (h *MeHandler) HandleTools(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	tools, err := h.tools.ListBySubmitter(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toolsResponse{Tools: tools})
}
