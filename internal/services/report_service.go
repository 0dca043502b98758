package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "ebidash/internal/errors"
	"ebidash/internal/pipeline"
	"ebidash/pkg/contracts/domain"
)

// ReportRunner executes one report spec
type ReportRunner interface {
	Run(ctx context.Context, spec *pipeline.ReportSpec, req pipeline.Request) (*domain.Report, error)
}

// ReportService serves the report catalog
type ReportService struct {
	catalog *pipeline.Catalog
	runner  ReportRunner
	logger  *slog.Logger
	group   singleflight.Group

	runTimeout time.Duration
}

// NewReportService creates a report service over a catalog
func NewReportService(catalog *pipeline.Catalog, runner ReportRunner, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		catalog: catalog,
		runner:  runner,
		logger:  logger.With(slog.String("component", "report_service")),
	}
}

// WithRunTimeout bounds a shared run once its callers have stopped waiting
func (s *ReportService) WithRunTimeout(d time.Duration) *ReportService {
	s.runTimeout = d
	return s
}

// List describes every report in catalog order
func (s *ReportService) List(ctx context.Context) []pipeline.Summary {
	summaries := s.catalog.Summaries()
	s.logger.DebugContext(ctx, "listing reports", slog.Int("count", len(summaries)))
	return summaries
}

// Describe returns the summary of one report
func (s *ReportService) Describe(ctx context.Context, name string) (pipeline.Summary, error) {
	for _, sum := range s.catalog.Summaries() {
		if sum.Name == name {
			return sum, nil
		}
	}
	_, err := s.catalog.Get(name)
	return pipeline.Summary{}, err
}

// DefaultRange is the window a report runs over when the request gives none
func (s *ReportService) DefaultRange(name string) (domain.YearRange, error) {
	spec, err := s.catalog.Get(name)
	if err != nil {
		return domain.YearRange{}, err
	}
	return spec.DefaultRange, nil
}

// Generate runs a report. Identical requests in flight share one run and
// receive the same report, which callers must treat as read-only.
func (s *ReportService) Generate(ctx context.Context, name string, req pipeline.Request) (*domain.Report, error) {
	spec, err := s.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	if req.Query != "" && spec.Search == nil {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("report %q does not take a search query", name)).
			WithContext("report", name)
	}

	start := time.Now()
	// Shared runs outlive the caller that started them; each caller stops
	// waiting on its own context.
	ch := s.group.DoChan(flightKey(name, req), func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		if s.runTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.runTimeout)
			defer cancel()
		}
		return s.runner.Run(runCtx, spec, req)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		s.logger.WarnContext(ctx, "report generation failed",
			slog.String("report", name),
			slog.String("error", err.Error()),
			slog.Bool("retryable", apperrors.IsRetryable(err)),
		)
		return nil, err
	}

	report := v.(*domain.Report)
	s.logger.InfoContext(ctx, "report served",
		slog.String("report", name),
		slog.String("run_id", report.RunID),
		slog.Bool("shared", shared),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func flightKey(name string, req pipeline.Request) string {
	key := name + "|" + req.Query
	if req.Range != nil {
		key += fmt.Sprintf("|%d-%d", req.Range.Start, req.Range.End)
	}
	return key
}
