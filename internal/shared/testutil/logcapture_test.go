package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCapture(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("test message", slog.String("key", "value"))
		logger.Error("error message", slog.Int("code", 500))

		assert.Len(t, handler.GetRecords(), 2)
		assert.True(t, handler.ContainsMessage("test message"))
		assert.True(t, handler.ContainsAttr("key", "value"))
		assert.True(t, handler.ContainsAttr("code", int64(500)))
	})

	t.Run("filters by level", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Warn("warn msg")
		logger.Error("error msg")

		assert.Len(t, handler.GetRecordsByLevel(slog.LevelInfo), 1)
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
	})

	t.Run("with attrs and groups", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		stage := logger.With(slog.String("stage", "join"))
		stage.WithGroup("stats").Info("done", slog.Int("matched", 3))

		records := handler.GetRecords()
		require.Len(t, records, 1)
		assert.Equal(t, "join", records[0].Attrs["stage"])
		assert.Equal(t, int64(3), records[0].Attrs["stats.matched"])
	})

	t.Run("clear", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("message 1")
		logger.Info("message 2")
		assert.Equal(t, 2, handler.Count())

		handler.Clear()
		assert.Zero(t, handler.Count())
	})
}

func TestFixtures(t *testing.T) {
	tables := AllTables()
	require.Len(t, tables, 6)
	for source, table := range tables {
		assert.Equal(t, source, table.Source)
		assert.NotZero(t, table.Len(), source)
	}
	assert.True(t, BerkeleyTable().HasColumn("2029"))
}
