// Package app wires the reporting service together: configuration,
// logging, OpenTelemetry, the ledger sources, the reconciliation engine,
// the HTTP router and the server lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML file, .env, EBI_* environment)
//	2. Initialize slog and the OpenTelemetry providers
//	3. Route every configured source id to a Sheets, xlsx or csv reader
//	4. Wrap the sources in the freshness cache
//	5. Build the runner and the report catalog (with overrides)
//	6. Create services, handlers and middleware; start the HTTP server
//
// NewEngine is usable on its own; the report command runs the same
// engine without the HTTP layer.
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM: in-flight requests finish within the
// configured shutdown timeout, then the telemetry providers are flushed.
// Errors are returned to the caller; the package never calls os.Exit.
package app
