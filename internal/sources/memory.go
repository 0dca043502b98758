package sources

import (
	"context"
	"sync"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// MemorySource serves tables held in memory. Every Load returns a copy.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[domain.SourceID]*domain.Table
	loads  map[domain.SourceID]int
}

// NewMemorySource creates a source over the given tables
func NewMemorySource(tables map[domain.SourceID]*domain.Table) *MemorySource {
	m := &MemorySource{
		tables: make(map[domain.SourceID]*domain.Table, len(tables)),
		loads:  make(map[domain.SourceID]int),
	}
	for id, t := range tables {
		m.tables[id] = t.Clone()
	}
	return m
}

// Load returns a copy of the table stored under id
func (m *MemorySource) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[id]++
	t, ok := m.tables[id]
	if !ok {
		return nil, apperrors.NewRetrievalError(id.String(), apperrors.NewNotFoundError("table "+id.String()))
	}
	return t.Clone(), nil
}

// Set replaces the table stored under id
func (m *MemorySource) Set(id domain.SourceID, t *domain.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[id] = t.Clone()
}

// Loads reports how many times id was loaded
func (m *MemorySource) Loads(id domain.SourceID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loads[id]
}
