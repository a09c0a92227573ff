// Package server is the composition root: it opens the database, builds the
// services and handlers, and maps them onto routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlite.DB ─┬─→ ToolService ───────┬─→ handlers → chi routes
//	              → cache ─────┤   VoteService        │
//	              → admins ────┤   ModerationService  │
//	                           │   UserService        │
//	                           └─→ trending.Job ──────┘ (cron route, scheduler)
//
// Keeping this out of main.go lets tests build a complete server against an
// in-memory database and drive it with httptest.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/config"
	"github.com/sakif/alternatives/internal/handler"
	"github.com/sakif/alternatives/internal/middleware"
	sqliteRepo "github.com/sakif/alternatives/internal/repository/sqlite"
	"github.com/sakif/alternatives/internal/service"
	"github.com/sakif/alternatives/internal/trending"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it on shutdown, after
// in-flight requests and any running ingestion have finished.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	cache     *cache.Cache
	admins    *auth.StaticAdmins
	job       *trending.Job
	scheduler *trending.Scheduler
}

// New builds the whole dependency graph from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		cache:  cache.New(cfg.Cache.Size),
		admins: auth.NewStaticAdmins(cfg.Auth.AdminUserIDs),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	if s.admins.Count() == 0 {
		logger.Warn("no admin user ids configured, moderation endpoints will refuse everyone")
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Admins is the live allow-list; the config watcher swaps its contents.
func (s *Server) Admins() *auth.StaticAdmins {
	return s.admins
}

// Close releases the database without serving. Start closes it itself.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) tokenService() (*auth.TokenService, error) {
	secret := s.cfg.Auth.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		s.logger.Warn("JWT_SECRET is not set, using an ephemeral secret; sessions end on restart")
	}
	return auth.NewTokenService(secret, s.cfg.Auth.SessionTTL)
}

func (s *Server) webhookVerifier() (auth.WebhookVerifier, error) {
	if s.cfg.Auth.WebhookSecret == "" {
		s.logger.Warn("WEBHOOK_SECRET is not set, identity webhooks will be refused")
		return nil, nil
	}
	return auth.NewSvixVerifier(s.cfg.Auth.WebhookSecret)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                          → database reachability
//	GET    /auth/github/login                → start OAuth (only with GitHub credentials)
//	GET    /auth/github/callback             → finish OAuth, set session cookie
//	POST   /auth/logout                      → clear session cookie
//	GET    /api/tools                        → paginated catalogue
//	GET    /api/tools/{slug}                 → tool details
//	POST   /api/tools/suggest                → suggest a tool           [user, rate limited]
//	PATCH  /api/tools/{slug}                 → edit a tool              [admin]
//	DELETE /api/tools/{slug}                 → delete a tool            [admin]
//	GET    /api/votes?toolId=                → has the caller voted
//	POST   /api/votes                        → vote                     [user, rate limited]
//	DELETE /api/votes                        → withdraw vote            [user, rate limited]
//	GET    /api/cron/ingest-trends           → run ingestion            [cron secret or admin]
//	POST   /api/webhooks/identity            → identity provider events [signed]
//	GET    /api/admin/check                  → {isAdmin}
//	GET    /api/admin/tools/pending          → moderation queue         [admin]
//	POST   /api/admin/tools/{id}/approve     → approve                  [admin]
//	POST   /api/admin/tools/{id}/reject      → reject                   [admin]
//	GET    /api/me                           → profile                  [user]
//	GET    /api/me/tools                     → own suggestions          [user]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	tokens, err := s.tokenService()
	if err != nil {
		return err
	}
	verifier, err := s.webhookVerifier()
	if err != nil {
		return err
	}
	cronSecret, err := auth.NewSecretVerifier(s.cfg.Cron.Secret, s.cfg.Cron.SecretHash, auth.DefaultSecretCost)
	if err != nil {
		return fmt.Errorf("cron secret: %w", err)
	}
	if !cronSecret.Enabled() {
		s.logger.Warn("no cron secret configured, only admins can trigger ingestion")
	}

	// === Services ===
	policy := service.CachePolicy{
		ListTTL:    s.cfg.Cache.ListTTL,
		DetailsTTL: s.cfg.Cache.DetailsTTL,
		VoteTTL:    s.cfg.Cache.VoteTTL,
	}
	toolService := service.NewToolService(s.db, s.db, s.cache, policy, s.logger)
	voteService := service.NewVoteService(s.db, s.cache, policy.VoteTTL, s.logger)
	moderationService := service.NewModerationService(s.db, s.db, s.admins, s.cache, s.logger)
	userService := service.NewUserService(s.db, s.db, s.db, s.admins, s.cache, s.logger)
	authService := service.NewAuthService(s.db, tokens, s.logger)

	feed := trending.NewClient(s.cfg.Trending.FeedURL, s.cfg.Trending.Timeout)
	s.job = trending.NewJob(feed, s.db, s.cache, s.logger)
	if s.cfg.Trending.Interval > 0 {
		s.scheduler = trending.NewScheduler(s.job, s.cfg.Trending.Interval, s.logger)
	}

	// === Handlers ===
	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	toolHandler := handler.NewToolHandler(toolService, moderationService, s.logger)
	voteHandler := handler.NewVoteHandler(voteService, s.logger)
	cronHandler := handler.NewCronHandler(s.job, cronSecret, userService, s.logger)
	webhookHandler := handler.NewWebhookHandler(verifier, userService, s.logger)
	adminHandler := handler.NewAdminHandler(moderationService, userService, s.logger)
	meHandler := handler.NewMeHandler(userService, toolService, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			auth.HeaderWebhookID, auth.HeaderWebhookTimestamp, auth.HeaderWebhookSignature},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", healthHandler.HandleHealth)

	// === Auth Routes ===
	if s.cfg.Auth.GitHubEnabled() {
		github := auth.NewGitHubProvider(s.cfg.Auth.GitHubClientID, s.cfg.Auth.GitHubClientSecret, s.cfg.Auth.GitHubCallbackURL)
		secure := strings.HasPrefix(s.cfg.Auth.GitHubCallbackURL, "https://")
		authHandler := handler.NewAuthHandler(github, authService, tokens, secure, s.logger)

		s.router.Route("/auth", func(r chi.Router) {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
			r.Post("/logout", authHandler.HandleLogout)
		})
	} else {
		s.logger.Info("GitHub login disabled (GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET not set)")
	}

	// Writes are rate limited per client IP. 0 disables the limiter.
	limitWrites := func(next http.Handler) http.Handler { return next }
	if s.cfg.Server.RateLimit > 0 {
		limitWrites = httprate.LimitByIP(s.cfg.Server.RateLimit, s.cfg.Server.RateWindow)
	}

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		// Signed by the provider; no session involved.
		r.Post("/webhooks/identity", webhookHandler.HandleIdentity)

		// Public, with identity when present.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Get("/tools", toolHandler.HandleList)
			r.Get("/tools/{slug}", toolHandler.HandleDetails)
			r.Get("/votes", voteHandler.HandleStatus)
			r.Get("/admin/check", adminHandler.HandleCheck)
			r.Get("/cron/ingest-trends", cronHandler.HandleIngestTrends)
		})

		// Signed-in users.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", meHandler.HandleProfile)
			r.Get("/me/tools", meHandler.HandleTools)

			r.With(limitWrites).Post("/tools/suggest", toolHandler.HandleSuggest)
			r.With(limitWrites).Post("/votes", voteHandler.HandleAdd)
			r.With(limitWrites).Delete("/votes", voteHandler.HandleRemove)
		})

		// Admins.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Use(auth.RequireAdmin(s.admins, s.logger))
			r.Patch("/tools/{slug}", toolHandler.HandleUpdate)
			r.Delete("/tools/{slug}", toolHandler.HandleDelete)
			r.Get("/admin/tools/pending", adminHandler.HandlePending)
			r.Post("/admin/tools/{id}/approve", adminHandler.HandleApprove)
			r.Post("/admin/tools/{id}/reject", adminHandler.HandleReject)
		})
	})

	return nil
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
//  1. Stop accepting new connections and wait for in-flight requests
//  2. Stop the ingestion scheduler (waits for a running pass)
//  3. Close the database
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// Ingestion runs inside the request and may outlast the default timeout.
	if s.cfg.Trending.Timeout+15*time.Second > srv.WriteTimeout {
		srv.WriteTimeout = s.cfg.Trending.Timeout + 15*time.Second
	}

	if s.scheduler != nil {
		s.scheduler.Start(context.Background())
		defer s.scheduler.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Server.Port)),
			slog.String("database", s.cfg.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
