package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// SheetRef locates a ledger inside a spreadsheet
type SheetRef struct {
	SpreadsheetID string `yaml:"spreadsheet_id" json:"spreadsheet_id" validate:"required"`
	// Range is A1 notation; a bare sheet name reads the whole sheet
	Range string `yaml:"range" json:"range" validate:"required"`
}

// SheetsConfig configures the Sheets client
type SheetsConfig struct {
	// CredentialsFile is a service account JSON key
	CredentialsFile string
	// CredentialsJSON takes precedence over CredentialsFile
	CredentialsJSON []byte
	// RequestsPerSecond caps Values.Get calls; the API quota is per minute
	RequestsPerSecond float64
	Burst             int
	// ClientOptions are appended to the credential option, e.g. a test endpoint
	ClientOptions []option.ClientOption
}

// SheetsSource reads ledgers through the Google Sheets v4 API
type SheetsSource struct {
	service *sheets.Service
	refs    map[domain.SourceID]SheetRef
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSheetsService builds a Sheets client from the config's credentials
func NewSheetsService(ctx context.Context, cfg SheetsConfig) (*sheets.Service, error) {
	var opts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, apperrors.NewConfigError("read sheets credentials", err).
				WithContext("path", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsJSON(data))
	}
	opts = append(opts, cfg.ClientOptions...)
	if len(opts) == 0 {
		return nil, apperrors.NewConfigError("sheets credentials not configured", nil)
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewConfigError("create sheets service", err)
	}
	return svc, nil
}

// NewSheetsSource creates a source over svc. A zero RequestsPerSecond
// leaves calls unthrottled.
func NewSheetsSource(svc *sheets.Service, refs map[domain.SourceID]SheetRef, cfg SheetsConfig, logger *slog.Logger) *SheetsSource {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	copied := make(map[domain.SourceID]SheetRef, len(refs))
	for id, ref := range refs {
		copied[id] = ref
	}
	return &SheetsSource{
		service: svc,
		refs:    copied,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(slog.String("component", "sheets_source")),
	}
}

// Load reads the configured range for id
func (s *SheetsSource) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	ref, ok := s.refs[id]
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("no sheet configured for source %q", id), nil).
			WithContext("source", id.String())
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err)
	}

	start := time.Now()
	resp, err := s.service.Spreadsheets.Values.Get(ref.SpreadsheetID, ref.Range).Context(ctx).Do()
	if err != nil {
		s.logger.WarnContext(ctx, "sheet read failed",
			slog.String("source", id.String()),
			slog.String("range", ref.Range),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.NewRetrievalError(id.String(), err).
			WithContext("spreadsheet_id", ref.SpreadsheetID).
			WithContext("range", ref.Range)
	}

	t := TableFromRows(id, resp.Values, s.logger)
	s.logger.InfoContext(ctx, "sheet loaded",
		slog.String("source", id.String()),
		slog.String("range", ref.Range),
		slog.Int("rows", t.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return t, nil
}
