// Package services sits between the HTTP handlers (and the report CLI) and
// the reconciliation pipeline.
//
// # Services
//
// ReportService lists the catalog, resolves a report's default year window
// and generates reports through a ReportRunner. Identical requests that are
// in flight at the same time share one pipeline run.
//
//	svc := services.NewReportService(catalog, runner, logger)
//	rep, err := svc.Generate(ctx, "top-pis", pipeline.Request{})
//
// HealthService answers the liveness, readiness and version probes. Readiness
// is degraded while a source a catalog report reads has no configured
// location.
//
// # Errors
//
// Services return *errors.AppError values. An unknown report name is an
// ErrTypeNotFound error and a bad window or query is an ErrTypeValidation
// error; handlers map both onto RFC 7807 problem responses.
package services
