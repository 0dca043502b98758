package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"ebidash/internal/pipeline"
	"ebidash/pkg/contracts"
	"ebidash/pkg/contracts/domain"
)

// HealthService provides health check functionality
type HealthService struct {
	version    contracts.VersionInfo
	catalog    *pipeline.Catalog
	configured map[domain.SourceID]bool
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health states
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// NewHealthService creates a health service. configured lists the source ids
// that have a location in the configuration.
func NewHealthService(version contracts.VersionInfo, catalog *pipeline.Catalog, configured []string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[domain.SourceID]bool, len(configured))
	for _, id := range configured {
		set[domain.SourceID(id)] = true
	}

	logger.Info("HealthService initialized",
		slog.String("version", version.Version),
		slog.Int("sources", len(set)))

	return &HealthService{
		version:    version,
		catalog:    catalog,
		configured: set,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "HealthCheck: performing health check",
		slog.Duration("uptime", time.Since(hs.startTime)))

	return HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   hs.version.Version,
	}
}

// ReadinessCheck reports whether every catalog report can read its sources
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   hs.version.Version,
		Services: map[string]ServiceHealth{
			"catalog": hs.checkCatalog(),
			"sources": hs.checkSources(),
		},
	}

	for _, sh := range status.Services {
		if sh.Status != StatusReady {
			status.Status = StatusNotReady
			break
		}
	}
	if status.Status != StatusReady {
		hs.logger.WarnContext(ctx, "ReadinessCheck: not ready",
			slog.String("sources", status.Services["sources"].Message))
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: time.Now(),
		Version:   hs.version.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	return map[string]interface{}{
		"version":       hs.version.Version,
		"report_schema": hs.version.ReportSchema,
		"git_commit":    hs.version.GitCommit,
		"build_time":    hs.version.BuildTime,
		"dirty_tree":    hs.version.DirtyTree,
		"go_version":    hs.version.GoVersion,
		"platform":      hs.version.Platform,
		"uptime":        time.Since(hs.startTime).Seconds(),
		"start_time":    hs.startTime.Format(time.RFC3339),
	}
}

func (hs *HealthService) checkCatalog() ServiceHealth {
	if hs.catalog == nil || len(hs.catalog.Names()) == 0 {
		return ServiceHealth{Status: StatusNotReady, Message: "report catalog is empty"}
	}
	return ServiceHealth{
		Status:  StatusReady,
		Message: fmt.Sprintf("%d reports", len(hs.catalog.Names())),
	}
}

// checkSources lists the sources some report reads but nothing configures
func (hs *HealthService) checkSources() ServiceHealth {
	if hs.catalog == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "no catalog"}
	}
	missing := map[string]bool{}
	for _, spec := range hs.catalog.Specs() {
		for _, id := range spec.Sources() {
			if !hs.configured[id] {
				missing[string(id)] = true
			}
		}
	}
	if len(missing) == 0 {
		return ServiceHealth{Status: StatusReady, Message: fmt.Sprintf("%d sources configured", len(hs.configured))}
	}
	names := make([]string, 0, len(missing))
	for id := range missing {
		names = append(names, id)
	}
	sort.Strings(names)
	return ServiceHealth{
		Status:  StatusNotReady,
		Message: "unconfigured sources: " + strings.Join(names, ", "),
	}
}
