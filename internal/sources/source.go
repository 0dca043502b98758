// Package sources loads the ledgers the reports read from.
//
// Every ledger is addressed by a domain.SourceID and comes back as a
// domain.Table whose first sheet row became the header. Implementations exist
// for Google Sheets, xlsx workbooks, csv files and in-memory tables; Cached
// fronts any of them with a freshness policy, and Mux routes each id to the
// implementation configured for it.
//
// A failed load is always a retrieval error (errors.ErrTypeRetrieval) naming
// the source, so callers can tell it apart from a broken report definition.
package sources

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// TableSource yields the current contents of a ledger
type TableSource interface {
	Load(ctx context.Context, id domain.SourceID) (*domain.Table, error)
}

// SourceFunc adapts a function to TableSource
type SourceFunc func(ctx context.Context, id domain.SourceID) (*domain.Table, error)

// Load calls f
func (f SourceFunc) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	return f(ctx, id)
}

// Observer receives source activity; infrastructure.PipelineMetrics implements it
type Observer interface {
	SourceLoaded(ctx context.Context, id domain.SourceID, rows int, err error)
	CacheHit(ctx context.Context, id domain.SourceID)
	CacheMiss(ctx context.Context, id domain.SourceID)
}

type nopObserver struct{}

func (nopObserver) SourceLoaded(context.Context, domain.SourceID, int, error) {}
func (nopObserver) CacheHit(context.Context, domain.SourceID)                 {}
func (nopObserver) CacheMiss(context.Context, domain.SourceID)                {}

// LoadAll loads every id concurrently. The first failure cancels the rest and
// is returned; no partial result is handed back.
func LoadAll(ctx context.Context, src TableSource, ids ...domain.SourceID) (map[domain.SourceID]*domain.Table, error) {
	out := make(map[domain.SourceID]*domain.Table, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range dedupIDs(ids) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return retrievalError(id, err)
			}
			t, err := src.Load(gctx, id)
			if err != nil {
				return retrievalError(id, err)
			}
			mu.Lock()
			out[id] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dedupIDs(ids []domain.SourceID) []domain.SourceID {
	seen := make(map[domain.SourceID]bool, len(ids))
	out := make([]domain.SourceID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// retrievalError wraps err as a retrieval error unless it already carries an
// AppError type, e.g. a configuration error for an unknown source.
func retrievalError(id domain.SourceID, err error) error {
	if apperrors.TypeOf(err) != "" {
		return err
	}
	return apperrors.NewRetrievalError(id.String(), err)
}

// TableFromRows turns sheet rows into a table: the first row is the header,
// empty header cells and repeated header names are skipped, blank cells
// become nil and short rows are padded. Fully blank rows are dropped.
func TableFromRows(id domain.SourceID, rows [][]any, logger *slog.Logger) *domain.Table {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rows) == 0 {
		return domain.NewTable(id)
	}

	type col struct {
		name string
		idx  int
	}
	var cols []col
	seen := make(map[string]bool)
	for i, h := range rows[0] {
		name := strings.TrimSpace(domain.CellString(h))
		if name == "" {
			continue
		}
		if seen[name] {
			logger.Debug("duplicate header skipped",
				slog.String("source", id.String()),
				slog.String("column", name),
				slog.Int("index", i),
			)
			continue
		}
		seen[name] = true
		cols = append(cols, col{name: name, idx: i})
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	t := domain.NewTable(id, names...)

	for _, raw := range rows[1:] {
		row := make(domain.Row, len(cols))
		blank := true
		for _, c := range cols {
			var cell any
			if c.idx < len(raw) {
				cell = raw[c.idx]
			}
			if s, ok := cell.(string); ok && strings.TrimSpace(s) == "" {
				cell = nil
			}
			if cell != nil {
				blank = false
			}
			row[c.name] = cell
		}
		if !blank {
			t.Append(row)
		}
	}
	return t
}

// StringRows widens [][]string (csv, excelize) to the [][]any TableFromRows takes
func StringRows(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = make([]any, len(r))
		for j, c := range r {
			out[i][j] = c
		}
	}
	return out
}
