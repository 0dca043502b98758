package app

import (
	"compress/flate"

	"github.com/go-chi/chi/v5"

	"ebidash/internal/config"
	apierrors "ebidash/internal/errors"
	"ebidash/internal/exporter"
	customMiddleware "ebidash/internal/middleware"
	handlers "ebidash/internal/transport/http"
)

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Telemetry.Environment == "development")

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Engine.Metrics, a.Logger).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.StripSlashes)

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// Prometheus scrape endpoint stays outside the API middleware
	r.Handle(config.MetricsEndpoint, handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))

	health := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	reports := handlers.NewReportHandler(
		a.Services.Reports,
		customMiddleware.NewValidationMiddleware(a.Logger, errorHandler),
		exporter.New(a.Logger),
		a.Logger,
		errorHandler,
	)
	sourcesHandler := handlers.NewSourcesHandler(a.Engine.Source, a.Config.SourceIDs(), a.Logger, errorHandler)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(errorHandler.Middleware)
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
			Logger:         a.Logger,
		}))
		if rl := a.Config.Server.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}
		r.Use(customMiddleware.Compress(flate.DefaultCompression))

		r.Get(config.HealthEndpoint, health.HealthCheck)
		r.Get(config.HealthEndpoint+"/ready", health.ReadinessCheck)
		r.Get(config.HealthEndpoint+"/live", health.LivenessCheck)
		r.Get("/version", health.Version)

		r.Mount("/reports", reports.Routes())
		r.Mount("/sources", sourcesHandler.Routes())
	})

	a.Router = r
}
