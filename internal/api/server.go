package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hellofresh/health-go/v5"

	"github.com/tribegate/tribegate/internal/app"
	"github.com/tribegate/tribegate/internal/auth"
	"github.com/tribegate/tribegate/internal/config"
	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/middleware"
)

// Services bundles the application services the handlers call.
type Services struct {
	Login    *app.LoginService
	Accounts *app.AccountService
	Wallets  *app.WalletService
	Roster   *app.RosterService
	Notes    *app.NoteService
	Admin    *app.AdminService
}

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	services   Services
	auth       *middleware.AuthMiddleware
	limiter    *middleware.RateLimiter
	health     *health.Health
	metrics    http.Handler
	httpServer *http.Server
}

// NewServer creates a new API server. metrics may be nil to leave
// /metrics unrouted.
func NewServer(
	cfg *config.Config,
	services Services,
	sessions *auth.SessionManager,
	healthCheck *health.Health,
	metrics http.Handler,
) *Server {
	return &Server{
		config:   cfg,
		services: services,
		auth:     middleware.NewAuthMiddleware(sessions),
		limiter:  middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		health:   healthCheck,
		metrics:  metrics,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientContext)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Instrument)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.LimitBody)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(s.limiter.Limit)
			r.Get("/discord/login", s.handleDiscordLogin)
			r.Get("/discord/callback", s.handleDiscordCallback)
			r.Post("/exchange", s.handleExchange)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Authenticate)

			r.Get("/me", s.handleMe)
			r.Delete("/me", s.handleDeleteMe)

			r.Route("/wallets", func(r chi.Router) {
				r.With(s.limiter.Limit).Post("/link-nonce", s.handleLinkNonce)
				r.With(s.limiter.Limit).Post("/link-verify", s.handleLinkVerify)
				r.Delete("/{id}", s.handleUnlinkWallet)
			})

			r.Get("/roster", s.handleRoster)
			r.Route("/roster/{externalId}", func(r chi.Router) {
				r.Get("/", s.handleRosterMember)
				r.Post("/admin", s.handleGrantAdmin)
				r.Delete("/admin", s.handleRevokeAdmin)
				r.Get("/notes", s.handleListNotes)
				r.Post("/notes", s.handleCreateNote)
			})
			r.Put("/notes/{id}", s.handleEditNote)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/users", s.handleListUsers)
				r.Patch("/users/{id}", s.handleUpdateUser)
				r.Get("/tribes", s.handleListTribes)
				r.Post("/tribes", s.handleCreateTribe)
				r.Patch("/tribes/{name}", s.handleRenameTribe)
				r.Post("/tribes/{name}/users", s.handleAddTribeMember)
				r.Delete("/tribes/{name}/users/{userId}", s.handleRemoveTribeMember)
				r.Delete("/wallets/{id}", s.handleForceDeleteWallet)
				r.Get("/audit", s.handleQueryAudit)
			})
		})
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info(context.Background(), "starting server", "port", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
