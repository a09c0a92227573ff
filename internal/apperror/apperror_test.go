package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	feedDown := errors.New("dial tcp: connection refused")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("tool", "ripgrep"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("Already voted."),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("sign in first"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream("trending feed", feedDown),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Upstream keeps the cause in the chain",
			err:       Upstream("trending feed", feedDown),
			target:    feedDown,
			wantMatch: true,
		},
		{
			name:      "wrapped NotFound still matches",
			err:       fmt.Errorf("loading tool: %w", NotFound("tool", "7")),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("tool", "ripgrep"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Forbidden does NOT match ErrUnauthorized",
			err:       Forbidden("admins only"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("tool", "ripgrep"),
			wantMessage: "tool not found with id ripgrep",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name:        "Conflict uses custom message",
			err:         Conflict("Already voted."),
			wantMessage: "Already voted.",
		},
		{
			name:        "Upstream hides the cause",
			err:         Upstream("trending feed", errors.New("secret internal detail")),
			wantMessage: "trending feed is unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", Upstream("trending feed", errors.New("timeout")))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As did not find *AppError")
	}
	if appErr.Message != "trending feed is unavailable" {
		t.Errorf("Message = %q", appErr.Message)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("repoUrl", "repoUrl must be a GitHub repository URL")

	if err.Field != "repoUrl" {
		t.Errorf("Field = %q, want %q", err.Field, "repoUrl")
	}
}
