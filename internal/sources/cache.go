package sources

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ebidash/pkg/contracts/domain"
)

// DefaultTTL matches how long the dashboards trusted a sheet read
const DefaultTTL = 10 * time.Minute

// FreshnessPolicy decides how long a loaded table may be served again
type FreshnessPolicy struct {
	// TTL of zero disables caching; every Load goes to the inner source
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// MaxEntries bounds the cache; the oldest entry is evicted first. Zero means unbounded.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	// LoadTimeout bounds a shared load once no caller is waiting on it. Zero
	// leaves the inner source to time itself out.
	LoadTimeout time.Duration `yaml:"load_timeout" json:"load_timeout"`
}

// DefaultFreshness is a ten minute TTL without a size bound
func DefaultFreshness() FreshnessPolicy {
	return FreshnessPolicy{TTL: DefaultTTL}
}

type cacheEntry struct {
	table     *domain.Table
	cachedAt  time.Time
	expiresAt time.Time
	hits      int
}

// CacheStats is a snapshot of cache activity
type CacheStats struct {
	Entries    int     `json:"entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRatio   float64 `json:"hit_ratio"`
	TTLSeconds float64 `json:"ttl_seconds"`
}

// Cached serves tables from memory while they are fresh. Concurrent loads of
// the same id share one call to the inner source. Callers always get a copy.
type Cached struct {
	inner    TableSource
	policy   FreshnessPolicy
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[domain.SourceID]cacheEntry
	hits    int64
	misses  int64
	group   singleflight.Group
}

// CacheOption configures Cached
type CacheOption func(*Cached)

// WithObserver reports hits, misses and loads
func WithObserver(o Observer) CacheOption {
	return func(c *Cached) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cached) { c.now = now }
}

// WithLogger sets the cache logger
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCached wraps inner with the policy
func NewCached(inner TableSource, policy FreshnessPolicy, opts ...CacheOption) *Cached {
	c := &Cached{
		inner:    inner,
		policy:   policy,
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
		entries:  make(map[domain.SourceID]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "source_cache"))
	return c
}

// Load returns a fresh cached copy or loads id from the inner source
func (c *Cached) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	if t, ok := c.get(id); ok {
		c.observer.CacheHit(ctx, id)
		return t, nil
	}
	c.observer.CacheMiss(ctx, id)

	// The load outlives a caller that gives up so the others sharing it
	// still get the table.
	ch := c.group.DoChan(id.String(), func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		if c.policy.LoadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, c.policy.LoadTimeout)
			defer cancel()
		}
		t, err := c.inner.Load(loadCtx, id)
		c.observer.SourceLoaded(loadCtx, id, t.Len(), err)
		if err != nil {
			return nil, retrievalError(id, err)
		}
		c.set(id, t)
		return t, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.DebugContext(ctx, "shared in-flight load", slog.String("source", id.String()))
		}
		return res.Val.(*domain.Table).Clone(), nil
	case <-ctx.Done():
		return nil, retrievalError(id, ctx.Err())
	}
}

func (c *Cached) get(id domain.SourceID) (*domain.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok || !c.now().Before(entry.expiresAt) {
		c.misses++
		return nil, false
	}
	entry.hits++
	c.entries[id] = entry
	c.hits++
	return entry.table.Clone(), true
}

func (c *Cached) set(id domain.SourceID, t *domain.Table) {
	if c.policy.TTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists && c.policy.MaxEntries > 0 && len(c.entries) >= c.policy.MaxEntries {
		c.evictOldest()
	}
	now := c.now()
	c.entries[id] = cacheEntry{
		table:     t.Clone(),
		cachedAt:  now,
		expiresAt: now.Add(c.policy.TTL),
	}
}

func (c *Cached) evictOldest() {
	var oldest domain.SourceID
	var oldestTime time.Time
	found := false
	for id, entry := range c.entries {
		if !found || entry.cachedAt.Before(oldestTime) {
			oldest, oldestTime, found = id, entry.cachedAt, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}

// Invalidate drops id so the next Load goes to the inner source. With no
// ids every entry is dropped.
func (c *Cached) Invalidate(ids ...domain.SourceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		c.entries = make(map[domain.SourceID]cacheEntry)
		return
	}
	for _, id := range ids {
		delete(c.entries, id)
	}
}

// Prune removes expired entries
func (c *Cached) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for id, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Stats returns cache statistics
func (c *Cached) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Entries:    len(c.entries),
		Hits:       c.hits,
		Misses:     c.misses,
		HitRatio:   ratio,
		TTLSeconds: c.policy.TTL.Seconds(),
	}
}
