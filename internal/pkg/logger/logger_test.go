package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	pkgcontext "github.com/scrutineering/scrutineer/internal/pkg/context"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug text", "debug", "text"},
		{"info json", "info", "json"},
		{"warn text", "warn", "text"},
		{"error json", "error", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.Logger == nil {
				t.Fatal("New() returned logger with nil slog.Logger")
			}
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	// Context without IDs logs without the attrs.
	logger.WithContext(context.Background()).Info("bare")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("bare context should not log request_id, got: %s", buf.String())
	}

	buf.Reset()
	ctx := pkgcontext.WithRequestID(context.Background(), "req-123")
	ctx = pkgcontext.WithAnalysisID(ctx, "a1b2c3")
	logger.WithContext(ctx).Info("tagged")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-123") {
		t.Errorf("WithContext() output missing request_id, got: %s", out)
	}
	if !strings.Contains(out, "analysis_id=a1b2c3") {
		t.Errorf("WithContext() output missing analysis_id, got: %s", out)
	}
}

func TestLogger_WithSystem(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithSystem("schulze").Info("scored")

	if !strings.Contains(buf.String(), "system=schulze") {
		t.Errorf("WithSystem() output missing system attr, got: %s", buf.String())
	}
}

func TestLogger_WithAnalysis(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithAnalysis("a1b2c3").Info("done")

	if !strings.Contains(buf.String(), "analysis_id=a1b2c3") {
		t.Errorf("WithAnalysis() output missing analysis_id attr, got: %s", buf.String())
	}
}

func TestLogger_WithError(t *testing.T) {
	logger := New("info", "text")

	l := logger.WithError(errors.New("boom"))
	if l == nil {
		t.Fatal("WithError() returned nil")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
		{"", slog.LevelInfo},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_OutputFormat(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "info", "json")

		logger.Info("test message")

		output := buf.String()
		if !strings.Contains(output, `"msg":"test message"`) {
			t.Errorf("JSON output should contain msg field, got: %s", output)
		}
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "info", "text")

		logger.Info("test message")

		output := buf.String()
		if !strings.Contains(output, "test message") {
			t.Errorf("Text output should contain message, got: %s", output)
		}
	})
}
