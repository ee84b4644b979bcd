// Package logger provides structured logging utilities.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	pkgcontext "github.com/scrutineering/scrutineer/internal/pkg/context"
)

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format.
// Format is "json" or "text"; unknown levels fall back to info.
func New(level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a logger writing to w. Used by tests to capture output.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger carrying the request and analysis IDs
// from ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if reqID := pkgcontext.RequestID(ctx); reqID != "" {
		out = &Logger{Logger: out.With("request_id", reqID)}
	}
	if analysisID := pkgcontext.AnalysisID(ctx); analysisID != "" {
		out = &Logger{Logger: out.With("analysis_id", analysisID)}
	}
	return out
}

// WithSystem returns a logger with voting-system context.
func (l *Logger) WithSystem(system string) *Logger {
	return &Logger{
		Logger: l.With("system", system),
	}
}

// WithAnalysis returns a logger with analysis ID context.
func (l *Logger) WithAnalysis(id string) *Logger {
	return &Logger{
		Logger: l.With("analysis_id", id),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}
