package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("hidden")
	log.Warn("shown", "cycle", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "cycle=3") {
		t.Fatalf("expected warn line with attrs, got %q", out)
	}
}

func TestOpenOutputsDefaultsToStdout(t *testing.T) {
	writers, err := openOutputs(Config{})
	if err != nil {
		t.Fatalf("openOutputs() error = %v", err)
	}
	if len(writers) != 1 || writers[0] != os.Stdout {
		t.Fatalf("expected a single stdout writer, got %#v", writers)
	}
}

func TestOpenOutputsRotatesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "espcam.log")

	writers, err := openOutputs(Config{Outputs: []string{"stdout", path}, MaxSizeMB: 2})
	if err != nil {
		t.Fatalf("openOutputs() error = %v", err)
	}
	if len(writers) != 2 {
		t.Fatalf("expected 2 writers, got %d", len(writers))
	}

	lj, ok := writers[1].(*lumberjack.Logger)
	if !ok {
		t.Fatalf("expected lumberjack writer, got %T", writers[1])
	}
	t.Cleanup(func() { _ = lj.Close() })

	if got, want := lj.MaxSize, 2; got != want {
		t.Fatalf("MaxSize = %d; want %d", got, want)
	}
	if got, want := lj.MaxBackups, 3; got != want {
		t.Fatalf("MaxBackups = %d; want %d", got, want)
	}
	if _, err := lj.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}
