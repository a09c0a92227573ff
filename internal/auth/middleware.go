package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is unexported so no other package can read or overwrite our
// context values by accident.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth rejects requests without a valid session with 401 and stores
// the caller's user ID in the context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil || userID == "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "You must be signed in.")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the user ID when a valid session is present and lets
// anonymous requests through untouched.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil && userID != "" {
				r = r.WithContext(ContextWithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must be mounted after RequireAuth. Non-admins get 403, and a
// failing admin lookup is treated as "not an admin".
func RequireAdmin(admins AdminChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "You must be signed in.")
				return
			}

			isAdmin, err := admins.IsAdmin(r.Context(), userID)
			if err != nil {
				logger.Error("admin check failed",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
			}
			if !isAdmin {
				writeAuthError(w, http.StatusForbidden, "forbidden", "Forbidden: Admins only.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ContextWithUserID is what the middleware uses to attach an identity.
// Exported for handler tests that need an authenticated context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// extractUserID prefers the "token" cookie set by the login flow and falls
// back to a bearer header for API clients.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}
	if token, ok := BearerToken(r); ok {
		return tokens.Validate(token)
	}
	return "", http.ErrNoCookie
}

func writeAuthError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Both values are constants from this file, so no escaping is needed.
	w.Write([]byte(`{"error":"` + kind + `","message":"` + message + `"}` + "\n"))
}
