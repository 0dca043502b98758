package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// CacheStatsFunc reports the source cache size and hit ratio
type CacheStatsFunc func() (entries int, hitRatio float64)

// SystemMetrics records process and source cache gauges
type SystemMetrics struct {
	goroutines    metric.Int64Gauge
	heapBytes     metric.Int64Gauge
	systemBytes   metric.Int64Gauge
	gcCount       metric.Int64Gauge
	uptime        metric.Float64Gauge
	cacheEntries  metric.Int64Gauge
	cacheHitRatio metric.Float64Gauge

	cacheStats CacheStatsFunc
	startTime  time.Time
}

// SystemStats holds one sample
type SystemStats struct {
	Goroutines    int64         `json:"goroutines"`
	HeapBytes     int64         `json:"heap_bytes"`
	SystemBytes   int64         `json:"system_bytes"`
	GCCount       uint32        `json:"gc_count"`
	Uptime        time.Duration `json:"uptime"`
	CacheEntries  int           `json:"cache_entries"`
	CacheHitRatio float64       `json:"cache_hit_ratio"`
	Timestamp     time.Time     `json:"timestamp"`
}

// NewSystemMetrics creates the gauges on meter. cacheStats may be nil.
func NewSystemMetrics(meter metric.Meter, cacheStats CacheStatsFunc) (*SystemMetrics, error) {
	sm := &SystemMetrics{cacheStats: cacheStats, startTime: time.Now()}
	var err error

	if sm.goroutines, err = meter.Int64Gauge("system_goroutines",
		metric.WithDescription("Number of active goroutines")); err != nil {
		return nil, err
	}
	if sm.heapBytes, err = meter.Int64Gauge("system_memory_heap_bytes",
		metric.WithDescription("Heap bytes in use"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.systemBytes, err = meter.Int64Gauge("system_memory_system_bytes",
		metric.WithDescription("Memory obtained from the OS in bytes"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if sm.gcCount, err = meter.Int64Gauge("system_gc_count",
		metric.WithDescription("Completed garbage collection cycles")); err != nil {
		return nil, err
	}
	if sm.uptime, err = meter.Float64Gauge("system_process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if sm.cacheEntries, err = meter.Int64Gauge("source_cache_entries",
		metric.WithDescription("Ledgers held by the source cache")); err != nil {
		return nil, err
	}
	if sm.cacheHitRatio, err = meter.Float64Gauge("source_cache_hit_ratio",
		metric.WithDescription("Share of source loads served from the cache")); err != nil {
		return nil, err
	}
	return sm, nil
}

// Collect samples the process and records the gauges
func (sm *SystemMetrics) Collect(ctx context.Context) *SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := &SystemStats{
		Goroutines:  int64(runtime.NumGoroutine()),
		HeapBytes:   int64(mem.HeapAlloc),
		SystemBytes: int64(mem.Sys),
		GCCount:     mem.NumGC,
		Uptime:      time.Since(sm.startTime),
		Timestamp:   time.Now(),
	}
	if sm.cacheStats != nil {
		stats.CacheEntries, stats.CacheHitRatio = sm.cacheStats()
	}

	sm.goroutines.Record(ctx, stats.Goroutines)
	sm.heapBytes.Record(ctx, stats.HeapBytes)
	sm.systemBytes.Record(ctx, stats.SystemBytes)
	sm.gcCount.Record(ctx, int64(stats.GCCount))
	sm.uptime.Record(ctx, stats.Uptime.Seconds())
	if sm.cacheStats != nil {
		sm.cacheEntries.Record(ctx, int64(stats.CacheEntries))
		sm.cacheHitRatio.Record(ctx, stats.CacheHitRatio)
	}
	return stats
}

// SystemMetricsCollector samples SystemMetrics on an interval
type SystemMetricsCollector struct {
	metrics  *SystemMetrics
	interval time.Duration
	logger   *slog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewSystemMetricsCollector creates a collector; Start runs it
func NewSystemMetricsCollector(meter metric.Meter, interval time.Duration, cacheStats CacheStatsFunc, logger *slog.Logger) (*SystemMetricsCollector, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("collection interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := NewSystemMetrics(meter, cacheStats)
	if err != nil {
		return nil, fmt.Errorf("failed to create system metrics: %w", err)
	}
	return &SystemMetricsCollector{
		metrics:  metrics,
		interval: interval,
		logger:   logger.With(slog.String("component", "system_metrics")),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start collects once, then on every tick until Stop or ctx is done
func (smc *SystemMetricsCollector) Start(ctx context.Context) {
	if !smc.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(smc.done)
		ticker := time.NewTicker(smc.interval)
		defer ticker.Stop()

		smc.metrics.Collect(ctx)
		for {
			select {
			case <-ticker.C:
				stats := smc.metrics.Collect(ctx)
				smc.logger.DebugContext(ctx, "system metrics collected",
					slog.Int64("goroutines", stats.Goroutines),
					slog.Int64("heap_bytes", stats.HeapBytes),
					slog.Int("cache_entries", stats.CacheEntries))
			case <-smc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends collection and waits for the loop to exit. Safe to call twice.
func (smc *SystemMetricsCollector) Stop() {
	smc.stopOnce.Do(func() { close(smc.stopCh) })
	if smc.started.Load() {
		<-smc.done
	}
}

// CurrentStats takes a sample now
func (smc *SystemMetricsCollector) CurrentStats(ctx context.Context) *SystemStats {
	return smc.metrics.Collect(ctx)
}
