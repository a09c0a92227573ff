// Package handler contains the HTTP request handlers of the API.
//
// An HTTP handler is anything that implements http.Handler; we use methods
// with the http.HandlerFunc signature, which chi accepts directly.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path and query params, body, identity)
//  2. Call the service layer
//  3. Write the HTTP response (status code, headers, body)
//
// Handlers contain no business rules. Every decision about what is allowed
// lives in internal/service, so the CLI and the tests see the same behaviour.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is satisfied by *sqlite.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HandleHealth reports whether the process can reach its database.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}
