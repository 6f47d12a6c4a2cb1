package indicator

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileIndicatorWritesBrightness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brightness")
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	ind, err := New(Config{Kind: "file", Path: path}, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := ind.Set(true); err != nil {
		t.Fatalf("Set(true) error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "1" {
		t.Fatalf("file = %q; want 1", got)
	}

	if err := ind.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "0" {
		t.Fatalf("file after Close = %q; want 0", got)
	}
}

func TestFileIndicatorRequiresExistingFile(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "missing"), discardLogger()); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := NewFile("", discardLogger()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLogIndicator(t *testing.T) {
	ind, err := New(Config{}, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, on := range []bool{true, true, false} {
		if err := ind.Set(on); err != nil {
			t.Fatalf("Set(%v) error = %v", on, err)
		}
	}
	if err := ind.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "laser"}, discardLogger()); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("New() error = %v; want ErrUnknownKind", err)
	}
}

func TestFillToneWrapsPhase(t *testing.T) {
	out := make([]float32, 16)
	phase := fillTone(out, 0, 0.25)

	want := []float32{0, 0.5, 0, -0.5}
	for i, w := range want {
		if math.Abs(float64(out[i]-w)) > 1e-6 {
			t.Fatalf("out[%d] = %v; want %v", i, out[i], w)
		}
	}
	if phase < 0 || phase >= 1 {
		t.Fatalf("phase = %v; want within [0,1)", phase)
	}
}
