package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/handler"
	"github.com/sakif/alternatives/internal/model"
	sqliteRepo "github.com/sakif/alternatives/internal/repository/sqlite"
	"github.com/sakif/alternatives/internal/service"
	"github.com/sakif/alternatives/internal/trending"
)

const testAdmin = "user_admin"

// testAPI is a router over real services and an in-memory database. The
// caller's identity comes from the X-Test-User header, which stands in for
// the JWT middleware.
type testAPI struct {
	router *chi.Mux
	db     *sqliteRepo.DB
	runner *stubRunner
}

type stubRunner struct {
	summary trending.Summary
	err     error
	calls   int
}

func (s *stubRunner) Run(context.Context) (trending.Summary, error) {
	s.calls++
	return s.summary, s.err
}

func asTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(auth.ContextWithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestAPI(t *testing.T, cronSecret string, verifier auth.WebhookVerifier) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := cache.New(64)
	admins := auth.NewStaticAdmins([]string{testAdmin})

	tools := service.NewToolService(db, db, c, service.DefaultCachePolicy, logger)
	votes := service.NewVoteService(db, c, service.DefaultCachePolicy.VoteTTL, logger)
	moderation := service.NewModerationService(db, db, admins, c, logger)
	users := service.NewUserService(db, db, db, admins, c, logger)

	secret, err := auth.NewSecretVerifier(cronSecret, "", 4)
	require.NoError(t, err)
	runner := &stubRunner{}

	toolHandler := handler.NewToolHandler(tools, moderation, logger)
	voteHandler := handler.NewVoteHandler(votes, logger)
	adminHandler := handler.NewAdminHandler(moderation, users, logger)
	meHandler := handler.NewMeHandler(users, tools, logger)
	cronHandler := handler.NewCronHandler(runner, secret, users, logger)
	webhookHandler := handler.NewWebhookHandler(verifier, users, logger)
	healthHandler := handler.NewHealthHandler(db, logger)

	r := chi.NewRouter()
	r.Use(asTestUser)
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/tools", toolHandler.HandleList)
		r.Get("/tools/{slug}", toolHandler.HandleDetails)
		r.Patch("/tools/{slug}", toolHandler.HandleUpdate)
		r.Delete("/tools/{slug}", toolHandler.HandleDelete)
		r.Post("/tools/suggest", toolHandler.HandleSuggest)
		r.Get("/votes", voteHandler.HandleStatus)
		r.Post("/votes", voteHandler.HandleAdd)
		r.Delete("/votes", voteHandler.HandleRemove)
		r.Get("/cron/ingest-trends", cronHandler.HandleIngestTrends)
		r.Post("/webhooks/identity", webhookHandler.HandleIdentity)
		r.Get("/admin/check", adminHandler.HandleCheck)
		r.Get("/admin/tools/pending", adminHandler.HandlePending)
		r.Post("/admin/tools/{id}/approve", adminHandler.HandleApprove)
		r.Post("/admin/tools/{id}/reject", adminHandler.HandleReject)
		r.Get("/me", meHandler.HandleProfile)
		r.Get("/me/tools", meHandler.HandleTools)
	})

	return &testAPI{router: r, db: db, runner: runner}
}

// do sends a request as userID ("" for anonymous) and returns the recorder.
func (a *testAPI) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) seedTool(t *testing.T, name, slug string, status model.ToolStatus, stars int) *model.Tool {
	t.Helper()
	tool := &model.Tool{
		Name:        name,
		Slug:        slug,
		Description: "About " + name,
		RepoURL:     "https://github.com/example/" + slug,
		Tags:        []string{"design"},
		GitHubStars: &stars,
		Status:      status,
	}
	require.NoError(t, a.db.CreateTool(context.Background(), tool))
	return tool
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
