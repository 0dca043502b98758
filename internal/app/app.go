package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"ebidash/internal/config"
	"ebidash/internal/infrastructure"
	"ebidash/internal/services"
	"ebidash/internal/sources"
	"ebidash/pkg/contracts"
	"ebidash/pkg/contracts/domain"
)

// AppName is logged at startup
const AppName = "ebidash - research funding reconciliation"

const systemMetricsInterval = 15 * time.Second

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Engine        *Engine
	Services      *ServiceContainer
	SystemMetrics *infrastructure.SystemMetricsCollector
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Reports *services.ReportService
	Health  *services.HealthService
}

// Option customizes NewApplication
type Option func(*options)

type options struct {
	logger    *slog.Logger
	source    sources.TableSource
	providers *infrastructure.OTelProviders
}

// WithLogger uses logger instead of initializing one from the config
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSource replaces the configured ledgers
func WithSource(src sources.TableSource) Option {
	return func(o *options) { o.source = src }
}

// WithProviders uses already initialized OpenTelemetry providers
func WithProviders(p *infrastructure.OTelProviders) Option {
	return func(o *options) { o.providers = p }
}

// NewApplication creates a new application instance with dependency injection.
// A nil cfg is loaded from the environment and config file.
func NewApplication(cfg *config.Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		l, err := infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
	}

	version := contracts.GetVersionInfo()
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", version.Version),
		slog.String("commit", version.GitCommit))

	providers := o.providers
	if providers == nil {
		p, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}
		providers = p
	}

	engine, err := NewEngine(context.Background(), cfg, EngineOptions{
		Logger:    logger,
		Providers: providers,
		Source:    o.source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	collector, err := infrastructure.NewSystemMetricsCollector(providers.Meter, systemMetricsInterval,
		func() (int, float64) {
			// expired ledgers are dropped so the gauge counts live entries
			engine.Source.Prune()
			stats := engine.Source.Stats()
			return stats.Entries, stats.HitRatio
		}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize system metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Engine:        engine,
		SystemMetrics: collector,
		Services: &ServiceContainer{
			Reports: services.NewReportService(engine.Catalog, engine.Runner, logger).
				WithRunTimeout(cfg.Server.RequestTimeout),
			Health:  services.NewHealthService(version, engine.Catalog, configuredSources(cfg, o.source), logger),
		},
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// configuredSources lists the ids readiness treats as available. An
// injected source serves every ledger.
func configuredSources(cfg *config.Config, injected sources.TableSource) []string {
	if injected == nil {
		return cfg.SourceIDs()
	}
	ids := make([]string, 0, len(domain.KnownSources))
	for _, id := range domain.KnownSources {
		ids = append(ids, id.String())
	}
	return ids
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Addr(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start starts serving in the background. A listener failure cancels ctx
// through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("address", a.Server.Addr),
		slog.String("level", a.Config.Logging.Level),
		slog.Any("sources", a.Config.SourceIDs()))

	if a.Config.Telemetry.EnableMetrics {
		a.SystemMetrics.Start(ctx)
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			infrastructure.WithError(a.Logger, err).ErrorContext(ctx, "Server error")
			cancel()
		}
	}()

	ready := a.Services.Health.ReadinessCheck(ctx)
	if ready.Status != services.StatusReady {
		a.Logger.WarnContext(ctx, "Startup readiness warnings", slog.Any("services", ready.Services))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost%s", a.Server.Addr)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	a.SystemMetrics.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			infrastructure.WithError(a.Logger, err).ErrorContext(ctx, "Error shutting down OpenTelemetry")
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return infrastructure.CloseLogFile()
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}
