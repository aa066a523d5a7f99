package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedlmalki/klaviyo/internal/account"
	"github.com/mohamedlmalki/klaviyo/internal/api"
	"github.com/mohamedlmalki/klaviyo/internal/config"
	"github.com/mohamedlmalki/klaviyo/internal/klaviyo"
	"github.com/mohamedlmalki/klaviyo/internal/metrics"
)

// App is the main application
type App struct {
	config        *config.Config
	store         *account.Store
	apiServer     *api.Server
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	store := account.NewStore(cfg.Storage.AccountsFile)
	client := klaviyo.NewClient(cfg.Klaviyo.BaseURL, cfg.Klaviyo.Revision, cfg.Klaviyo.Timeout)

	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger)
	}

	apiServer := api.NewServer(store, client, &cfg.Server, m, logger)

	return &App{
		config:        cfg,
		store:         store,
		apiServer:     apiServer,
		metricsServer: metricsServer,
		logger:        logger,
	}, nil
}

// Run starts the servers and blocks until a shutdown signal or a
// server error.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting klaviyo proxy",
		"api_addr", a.config.Server.ListenAddr,
		"accounts_file", a.store.Path(),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
		a.shutdown()
		return err
	}

	return a.shutdown()
}

// shutdown stops the servers with a grace period
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(ctx); err != nil {
		a.logger.Error("api server shutdown", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("metrics server shutdown", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger builds the slog logger from the logging configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
