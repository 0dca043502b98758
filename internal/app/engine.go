package app

import (
	"context"
	"fmt"
	"log/slog"

	"ebidash/internal/config"
	apperrors "ebidash/internal/errors"
	"ebidash/internal/identity"
	"ebidash/internal/infrastructure"
	"ebidash/internal/pipeline"
	"ebidash/internal/sources"
	"ebidash/pkg/contracts/domain"
)

// Engine is the reconciliation core assembled from configuration. The web
// server and the report command share it.
type Engine struct {
	Catalog *pipeline.Catalog
	Runner  *pipeline.Runner
	Source  *sources.Cached
	Metrics *infrastructure.PipelineMetrics
}

// EngineOptions carry the collaborators NewEngine does not build itself
type EngineOptions struct {
	Logger    *slog.Logger
	Providers *infrastructure.OTelProviders
	// Source replaces the configured ledgers, e.g. an in-memory source in tests
	Source sources.TableSource
}

// NewEngine wires sources, the runner and the report catalog
func NewEngine(ctx context.Context, cfg *config.Config, opts EngineOptions) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *infrastructure.PipelineMetrics
	runnerOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if opts.Providers != nil {
		m, err := infrastructure.NewPipelineMetrics(opts.Providers.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
		}
		metrics = m
		runnerOpts = append(runnerOpts,
			pipeline.WithTracer(opts.Providers.Tracer),
			pipeline.WithMetrics(metrics))
	}

	tieBreak, ok := identity.ParseTieBreak(cfg.Reconcile.TieBreak)
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown tie break %q", cfg.Reconcile.TieBreak), nil)
	}
	runnerOpts = append(runnerOpts, pipeline.WithResolverDefaults(cfg.Reconcile.Threshold, tieBreak))

	inner := opts.Source
	if inner == nil {
		mux, err := NewSourceMux(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		inner = mux
	}

	cacheOpts := []sources.CacheOption{sources.WithLogger(logger)}
	if metrics != nil {
		cacheOpts = append(cacheOpts, sources.WithObserver(metrics))
	}
	cached := sources.NewCached(inner, sources.FreshnessPolicy{
		TTL:         cfg.Cache.TTL,
		MaxEntries:  cfg.Cache.MaxEntries,
		LoadTimeout: cfg.Cache.LoadTimeout,
	}, cacheOpts...)

	overrides, err := pipeline.LoadOverrides(cfg.Reconcile.OverridesFile)
	if err != nil {
		return nil, err
	}
	catalog, err := pipeline.DefaultCatalog(pipeline.CatalogOptions{
		Range:     domain.YearRange{Start: cfg.Reconcile.StartYear, End: cfg.Reconcile.EndYear},
		Overrides: overrides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build report catalog: %w", err)
	}

	infrastructure.WithComponent(logger, "engine").Info("Reconciliation engine ready",
		slog.Int("reports", len(catalog.Names())),
		slog.Any("sources", cfg.SourceIDs()),
		slog.Float64("threshold", cfg.Reconcile.Threshold),
		slog.String("tie_break", cfg.Reconcile.TieBreak),
		slog.Bool("overrides", !overrides.Empty()))

	return &Engine{
		Catalog: catalog,
		Runner:  pipeline.NewRunner(cached, runnerOpts...),
		Source:  cached,
		Metrics: metrics,
	}, nil
}

// NewSourceMux routes every configured source id to a reader of its kind.
// Sheets sources share one API client and one rate limiter.
func NewSourceMux(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sources.Mux, error) {
	sheetRefs := map[domain.SourceID]sources.SheetRef{}
	xlsxRefs := map[domain.SourceID]sources.FileRef{}
	csvRefs := map[domain.SourceID]sources.FileRef{}

	for _, name := range cfg.SourceIDs() {
		id := domain.SourceID(name)
		if !id.Known() {
			return nil, apperrors.NewConfigError(fmt.Sprintf("unknown source %q", name), nil)
		}
		sc := cfg.Sources[name]
		switch sc.Kind {
		case config.KindSheets:
			sheetRefs[id] = sources.SheetRef{SpreadsheetID: sc.SpreadsheetID, Range: sc.Range}
		case config.KindXLSX:
			xlsxRefs[id] = sources.FileRef{Path: sc.Path, Sheet: sc.Sheet}
		case config.KindCSV:
			csvRefs[id] = sources.FileRef{Path: sc.Path}
		default:
			return nil, apperrors.NewConfigError(fmt.Sprintf("source %q has unknown kind %q", name, sc.Kind), nil)
		}
	}

	mux := sources.NewMux()
	if len(sheetRefs) > 0 {
		sheetsCfg := sources.SheetsConfig{
			CredentialsFile:   cfg.Sheets.CredentialsFile,
			RequestsPerSecond: cfg.Sheets.RequestsPerSecond,
			Burst:             cfg.Sheets.Burst,
		}
		svc, err := sources.NewSheetsService(ctx, sheetsCfg)
		if err != nil {
			return nil, err
		}
		mux.Handle(sources.NewSheetsSource(svc, sheetRefs, sheetsCfg, logger), keys(sheetRefs)...)
	}
	if len(xlsxRefs) > 0 {
		mux.Handle(sources.NewExcelSource(xlsxRefs, logger), keys(xlsxRefs)...)
	}
	if len(csvRefs) > 0 {
		mux.Handle(sources.NewCSVSource(csvRefs, logger), keys(csvRefs)...)
	}
	return mux, nil
}

func keys[V any](m map[domain.SourceID]V) []domain.SourceID {
	ids := make([]domain.SourceID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}
