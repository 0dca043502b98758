package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ebidash/internal/config"
)

var (
	loggerMu    sync.Mutex
	appLogger   *slog.Logger
	logFile     *os.File
	prevDefault *slog.Logger
)

// InitializeLogger builds the process logger from cfg, installs it as the
// slog default and returns it. Later calls return the first logger.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if appLogger != nil {
		return appLogger, nil
	}

	handler, file, err := newHandler(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	logFile = file
	appLogger = slog.New(handler)
	prevDefault = slog.Default()
	slog.SetDefault(appLogger)
	return appLogger, nil
}

// NewLogger builds a standalone logger. console receives the "console" and
// "both" outputs; the report command passes stderr so stdout stays free for
// the export. A log file it opens is closed by CloseLogFile.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, error) {
	handler, file, err := newHandler(cfg, console)
	if err != nil {
		return nil, err
	}
	if file != nil {
		loggerMu.Lock()
		if logFile != nil {
			logFile.Close()
		}
		logFile = file
		loggerMu.Unlock()
	}
	return slog.New(handler), nil
}

func newHandler(cfg config.LoggingConfig, console io.Writer) (slog.Handler, *os.File, error) {
	var (
		out  io.Writer
		file *os.File
		err  error
	)
	switch strings.ToLower(cfg.Output) {
	case "file", "both":
		if file, err = openLogFile(cfg.FilePath); err != nil {
			return nil, nil, err
		}
		out = file
		if strings.EqualFold(cfg.Output, "both") {
			out = io.MultiWriter(console, file)
		}
	default:
		out = console
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: parseLogLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &contextHandler{Handler: h}, file, nil
}

// contextHandler copies the trace and run ids carried by the context onto
// every record.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := GetTraceID(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	if id := GetRunID(ctx); id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLogLevel maps a config level name onto slog; unknown names mean info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CloseLogFile flushes and closes the log file, if one is open.
func CloseLogFile() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting drops the process logger so a test can initialize
// its own.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	loggerMu.Lock()
	if appLogger != nil && prevDefault != nil {
		slog.SetDefault(prevDefault)
	}
	appLogger, prevDefault = nil, nil
	loggerMu.Unlock()
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
