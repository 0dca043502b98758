package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one record seen by a LogCapture. Group names prefix attribute
// keys with a dot, so a "stats" group's matched count is "stats.matched".
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

type captured struct {
	mu      sync.Mutex
	records []LogRecord
}

// LogCapture is a slog.Handler that keeps every record in memory and echoes
// it to the test log. Loggers derived with With or WithGroup share the
// capture of their parent.
type LogCapture struct {
	store  *captured
	bound  []slog.Attr
	prefix string
	t      testing.TB
}

// NewTestLogger returns a logger at debug level and the capture behind it.
func NewTestLogger(t testing.TB) (*slog.Logger, *LogCapture) {
	c := &LogCapture{store: &captured{}, t: t}
	return slog.New(c), c
}

func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(c.bound)+r.NumAttrs())
	for _, a := range c.bound {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[c.prefix+a.Key] = a.Value.Any()
		return true
	})

	c.store.mu.Lock()
	c.store.records = append(c.store.records, LogRecord{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: attrs})
	c.store.mu.Unlock()

	if c.t != nil {
		c.t.Logf("%s %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *c
	next.bound = make([]slog.Attr, 0, len(c.bound)+len(attrs))
	next.bound = append(next.bound, c.bound...)
	for _, a := range attrs {
		next.bound = append(next.bound, slog.Attr{Key: c.prefix + a.Key, Value: a.Value})
	}
	return &next
}

func (c *LogCapture) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	next := *c
	next.prefix = c.prefix + name + "."
	return &next
}

// GetRecords returns a copy of everything captured so far
func (c *LogCapture) GetRecords() []LogRecord {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return append([]LogRecord(nil), c.store.records...)
}

// GetRecordsByLevel returns the records logged at exactly level
func (c *LogCapture) GetRecordsByLevel(level slog.Level) []LogRecord {
	var out []LogRecord
	for _, r := range c.GetRecords() {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// ContainsMessage reports whether any record's message contains substr
func (c *LogCapture) ContainsMessage(substr string) bool {
	for _, r := range c.GetRecords() {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any record carries key with exactly value.
// slog stores integers as int64.
func (c *LogCapture) ContainsAttr(key string, value any) bool {
	for _, r := range c.GetRecords() {
		if v, ok := r.Attrs[key]; ok && v == value {
			return true
		}
	}
	return false
}

func (c *LogCapture) Clear() {
	c.store.mu.Lock()
	c.store.records = nil
	c.store.mu.Unlock()
}

func (c *LogCapture) Count() int {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return len(c.store.records)
}

// AssertLogContains fails t unless a record at level contains message.
func AssertLogContains(t testing.TB, c *LogCapture, level slog.Level, message string) {
	t.Helper()
	records := c.GetRecordsByLevel(level)
	for _, r := range records {
		if strings.Contains(r.Message, message) {
			return
		}
	}
	t.Errorf("no %s record containing %q among %d", level, message, len(records))
}

// AssertLogAttr fails t unless some record carries key=value.
func AssertLogAttr(t testing.TB, c *LogCapture, key string, value any) {
	t.Helper()
	if !c.ContainsAttr(key, value) {
		t.Errorf("no record with %s=%v", key, value)
	}
}
