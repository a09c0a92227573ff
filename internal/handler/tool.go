package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/service"
)

// ToolHandler serves the catalogue: listing, details, suggestions and the
// admin edit/delete endpoints that share the /tools/{slug} path.
type ToolHandler struct {
	tools      *service.ToolService
	moderation *service.ModerationService
	logger     *slog.Logger
}

func NewToolHandler(tools *service.ToolService, moderation *service.ModerationService, logger *slog.Logger) *ToolHandler {
	return &ToolHandler{tools: tools, moderation: moderation, logger: logger}
}

// HandleList returns one page of approved tools.
//
// HTTP: GET /api/tools?page=1&limit=12&q=design&tags=go,cli&sortBy=score&order=desc
//
// "query" is accepted as an alias of "q". Tags are comma-separated and a tool
// must carry all of them.
func (h *ToolHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	search := q.Get("q")
	if search == "" {
		search = q.Get("query")
	}

	result, err := h.tools.List(r.Context(), service.ListParams{
		Page:   page,
		Limit:  limit,
		Query:  search,
		Tags:   splitList(q.Get("tags")),
		SortBy: q.Get("sortBy"),
		Order:  q.Get("order"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter. Empty means 0, which
// the service replaces with its default.
func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(field, field+" must be an integer")
	}
	if n == 0 {
		// An explicit 0 is out of range, not "use the default".
		return 0, apperror.ValidationFailed(field, field+" must be 1 or greater")
	}
	return n, nil
}

// HandleDetails returns an approved tool with its alternatives.
//
// HTTP: GET /api/tools/{slug}
func (h *ToolHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.tools.Details(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type suggestResponse struct {
	MessageResponse
	Tool *model.ScoredTool `json:"tool"`
}

// HandleSuggest stores a user's suggestion for moderation.
//
// HTTP: POST /api/tools/suggest
// Auth: Required
func (h *ToolHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.SuggestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tool, err := h.tools.Suggest(r.Context(), userID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, suggestResponse{
		MessageResponse: MessageResponse{Success: true, Message: "Suggestion submitted successfully."},
		Tool:            tool,
	})
}

type updateResponse struct {
	MessageResponse
	Tool *model.ScoredTool `json:"tool"`
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /api/tools/{slug}
// Auth: Admin
func (h *ToolHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var patch service.ToolPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, h.logger, err)
		return
	}

	tool, err := h.moderation.UpdateTool(r.Context(), userID, chi.URLParam(r, "slug"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		MessageResponse: MessageResponse{Success: true, Message: "Tool updated successfully."},
		Tool:            tool,
	})
}

// HandleDelete removes a tool with its votes and edges.
//
// HTTP: DELETE /api/tools/{slug}
// Auth: Admin
func (h *ToolHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.moderation.DeleteTool(r.Context(), userID, chi.URLParam(r, "slug")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Tool deleted successfully.")
}
