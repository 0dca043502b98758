package sources

import (
	"context"
	"fmt"
	"sort"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// Mux routes each source id to the TableSource configured for it, so the
// funding ledger can come from Sheets while the portfolio is an xlsx export.
type Mux struct {
	routes map[domain.SourceID]TableSource
}

// NewMux creates an empty router
func NewMux() *Mux {
	return &Mux{routes: make(map[domain.SourceID]TableSource)}
}

// Handle routes ids to src
func (m *Mux) Handle(src TableSource, ids ...domain.SourceID) *Mux {
	for _, id := range ids {
		m.routes[id] = src
	}
	return m
}

// Load delegates to the source routed for id
func (m *Mux) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	src, ok := m.routes[id]
	if !ok {
		return nil, apperrors.NewConfigError(fmt.Sprintf("source %q is not configured", id), nil).
			WithContext("source", id.String())
	}
	return src.Load(ctx, id)
}

// Routes lists the configured ids in sorted order
func (m *Mux) Routes() []domain.SourceID {
	ids := make([]domain.SourceID, 0, len(m.routes))
	for id := range m.routes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
