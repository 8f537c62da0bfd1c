// Package app assembles the license server: configuration, logging,
// storage, the key registry, the activation engine and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mcrsoft/keyserve/internal/config"
	"github.com/mcrsoft/keyserve/internal/infrastructure"
	"github.com/mcrsoft/keyserve/internal/license"
	custommw "github.com/mcrsoft/keyserve/internal/middleware"
	"github.com/mcrsoft/keyserve/internal/store"
	handlers "github.com/mcrsoft/keyserve/internal/transport/http"
)

// Version is the reported server version, overridable at build time.
var Version = "dev"

// Application is the dependency container for a running license server.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Registry *license.Registry
	Engine   *license.Engine
	Router   *chi.Mux
	Server   *http.Server
}

// NewApplication wires the full application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", Version),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	st, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	keygen := license.NewKeyGenerator(cfg.License.TokenPrefix)
	registry := license.NewRegistry(st, keygen, logger)
	engine := license.NewEngine(registry, st, logger)

	app := &Application{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Registry: registry,
		Engine:   engine,
	}
	app.Router = app.buildRouter()
	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.Path)
	}
}

func (a *Application) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.RateLimit(a.Config.Server.RateLimitRPS, a.Config.Server.RateLimitBurst))

	licenseHandler := handlers.NewLicenseHandler(a.Engine, a.Logger)
	adminHandler := handlers.NewAdminHandler(a.Registry, a.Logger,
		a.Config.License.MaxBatchSize, a.Config.License.MaxGrantDays)
	healthHandler := handlers.NewHealthHandler(a.Store, Version)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Mount("/license", licenseHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(custommw.AdminAuth(a.Config.Admin.Token))
			r.Mount("/keys", adminHandler.Routes())
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Run starts the HTTP server and blocks until the context is cancelled or
// SIGINT/SIGTERM arrives, then shuts down gracefully within the configured
// timeout.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()

	if closeErr := a.Store.Close(); closeErr != nil {
		a.Logger.Error("store close failed", slog.String("error", closeErr.Error()))
	}
	if logErr := infrastructure.CloseLogger(); logErr != nil && err == nil {
		err = logErr
	}

	a.Logger.Info("application stopped", slog.Duration("uptime", uptime()))
	return err
}

var startedAt = time.Now()

func uptime() time.Duration {
	return time.Since(startedAt)
}
