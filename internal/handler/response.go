package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, logger, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "tool not found with id figma"}
// Validation errors also name the offending field:
//   {"error": "validation_error", "message": "...", "field": "limit"}
//
// Successful writes answer {"success": true, "message": "..."} plus whatever
// payload the endpoint returns.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/alternatives/internal/apperror"
)

// maxBodyBytes caps request bodies. The largest legitimate body (a
// suggestion with ten tags) is well under 8 KiB.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body. Once Encode writes, the
// headers are gone and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Success: true, Message: message})
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// The service layer returns apperror sentinels; only this function knows
// about status codes.
//
//	ErrValidation   → 400    ErrForbidden → 403    ErrConflict → 409
//	ErrUnauthorized → 401    ErrNotFound  → 404    ErrUpstream → 500
//
// errors.Is walks the whole chain, so a service may wrap an AppError with
// fmt.Errorf("...: %w", err) and the mapping still works.
//
// Anything that is not an AppError is a persistence or programming failure:
// it is logged with full detail and the client gets a generic 500. Raw
// errors can contain SQL or file paths and must never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
		errorType = "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		errorType = "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		errorType = "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		errorType = "conflict"
	case errors.Is(err, apperror.ErrUpstream):
		errorType = "upstream_error"
		logger.Error("upstream failure", slog.String("error", errors.Unwrap(appErr).Error()))
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON body into dst. Malformed bodies are validation
// errors, so they come back as 400 through writeError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "Request body must not be empty.")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", fmt.Sprintf("Request body must not exceed %d bytes.", maxErr.Limit))
		default:
			return apperror.ValidationFailed("body", "Invalid JSON body.")
		}
	}
	return nil
}

// splitList turns "a,b,,c" into [a b c].
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
