package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/service"
)

type VoteHandler struct {
	votes  *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(votes *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

type voteRequest struct {
	ToolID int64 `json:"toolId"`
}

type hasVotedResponse struct {
	HasVoted bool `json:"hasVoted"`
}

// HandleStatus reports whether the caller voted for a tool. Anonymous callers
// get false rather than 401 so the page can render without a session.
//
// HTTP: GET /api/votes?toolId=42
// Auth: Optional
func (h *VoteHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	toolID, err := strconv.ParseInt(r.URL.Query().Get("toolId"), 10, 64)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("toolId", "Invalid tool ID."))
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	voted, err := h.votes.HasVoted(r.Context(), userID, toolID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hasVotedResponse{HasVoted: voted})
}

// HandleAdd records a vote.
//
// HTTP: POST /api/votes {"toolId": 42}
// Auth: Required
func (h *VoteHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.votes.Add(r.Context(), userID, req.ToolID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Vote added successfully.")
}

// HandleRemove withdraws a vote. Withdrawing a vote that does not exist
// still answers 200.
//
// HTTP: DELETE /api/votes {"toolId": 42}
// Auth: Required
func (h *VoteHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.votes.Remove(r.Context(), userID, req.ToolID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Vote removed successfully.")
}
