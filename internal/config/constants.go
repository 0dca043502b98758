package config

// Application constants
const (
	AppName = "ebidash"

	// API routes
	APIBasePath     = "/api"
	HealthEndpoint  = "/health"
	MetricsEndpoint = "/metrics"
)
