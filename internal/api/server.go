package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mohamedlmalki/klaviyo/internal/account"
	"github.com/mohamedlmalki/klaviyo/internal/config"
	"github.com/mohamedlmalki/klaviyo/internal/klaviyo"
	"github.com/mohamedlmalki/klaviyo/internal/metrics"
)

// AccountStore is the persistence layer for account records
type AccountStore interface {
	List(ctx context.Context) ([]account.Account, error)
	Create(ctx context.Context, acc account.Account) (account.Account, error)
	Update(ctx context.Context, id string, upd account.Update) (account.Account, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (account.Account, error)
}

// Upstream is the Klaviyo client surface the handlers compose with
type Upstream interface {
	VerifyKey(ctx context.Context, apiKey string) error
	Lists(ctx context.Context, apiKey string) ([]klaviyo.List, error)
	Subscribe(ctx context.Context, apiKey, email, listID string) error
}

// Server is the HTTP proxy server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      AccountStore
	upstream   Upstream
	config     *config.ServerConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	startTime  time.Time
}

// NewServer creates a new proxy server. The metrics instance may be nil
// when metrics are disabled.
func NewServer(store AccountStore, upstream Upstream, cfg *config.ServerConfig, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		upstream:  upstream,
		config:    cfg,
		logger:    logger,
		metrics:   m,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleCreateAccount)
		r.Put("/accounts/{id}", s.handleUpdateAccount)
		r.Delete("/accounts/{id}", s.handleDeleteAccount)

		r.Post("/check-status", s.handleCheckStatus)
		r.Get("/lists/{accountId}", s.handleLists)
		r.Post("/add-subscriber", s.handleAddSubscriber)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP proxy server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP proxy server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
