package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func gaugeFloat(t *testing.T, data map[string]metricdata.Aggregation, name string) float64 {
	t.Helper()
	agg, ok := data[name]
	require.True(t, ok, "metric %s not collected", name)
	g, ok := agg.(metricdata.Gauge[float64])
	require.True(t, ok, "metric %s is not a float64 gauge", name)
	require.NotEmpty(t, g.DataPoints)
	return g.DataPoints[0].Value
}

func gaugeInt(t *testing.T, data map[string]metricdata.Aggregation, name string) int64 {
	t.Helper()
	agg, ok := data[name]
	require.True(t, ok, "metric %s not collected", name)
	g, ok := agg.(metricdata.Gauge[int64])
	require.True(t, ok, "metric %s is not an int64 gauge", name)
	require.NotEmpty(t, g.DataPoints)
	return g.DataPoints[0].Value
}

func TestSystemMetricsCollect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sm, err := NewSystemMetrics(mp.Meter("test"), func() (int, float64) { return 4, 0.75 })
	require.NoError(t, err)

	stats := sm.Collect(context.Background())
	assert.Positive(t, stats.Goroutines)
	assert.Positive(t, stats.HeapBytes)
	assert.Equal(t, 4, stats.CacheEntries)
	assert.Equal(t, 0.75, stats.CacheHitRatio)

	data := collect(t, reader)
	assert.Equal(t, int64(4), gaugeInt(t, data, "source_cache_entries"))
	assert.Equal(t, 0.75, gaugeFloat(t, data, "source_cache_hit_ratio"))
	assert.Positive(t, gaugeInt(t, data, "system_goroutines"))
	assert.Contains(t, data, "system_process_uptime_seconds")
}

func TestSystemMetricsWithoutCache(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sm, err := NewSystemMetrics(mp.Meter("test"), nil)
	require.NoError(t, err)

	stats := sm.Collect(context.Background())
	assert.Zero(t, stats.CacheEntries)

	data := collect(t, reader)
	assert.NotContains(t, data, "source_cache_entries")
	assert.Contains(t, data, "system_memory_heap_bytes")
}

func TestSystemMetricsCollector(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	meter := mp.Meter("test")

	t.Run("invalid interval", func(t *testing.T) {
		_, err := NewSystemMetricsCollector(meter, 0, nil, nil)
		assert.Error(t, err)
	})

	t.Run("stop without start", func(t *testing.T) {
		c, err := NewSystemMetricsCollector(meter, time.Second, nil, nil)
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			c.Stop()
			c.Stop()
		})
	})

	t.Run("collects until stopped", func(t *testing.T) {
		calls := make(chan struct{}, 16)
		c, err := NewSystemMetricsCollector(meter, 10*time.Millisecond, func() (int, float64) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return 2, 0.5
		}, nil)
		require.NoError(t, err)

		c.Start(context.Background())
		c.Start(context.Background())

		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("collector did not sample")
		}
		c.Stop()

		assert.Equal(t, 2, c.CurrentStats(context.Background()).CacheEntries)
		assert.Equal(t, int64(2), gaugeInt(t, collect(t, reader), "source_cache_entries"))
	})

	t.Run("context cancel ends loop", func(t *testing.T) {
		c, err := NewSystemMetricsCollector(meter, time.Hour, nil, nil)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		c.Start(ctx)
		cancel()

		stopped := make(chan struct{})
		go func() {
			c.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("Stop blocked after context cancel")
		}
	})
}
