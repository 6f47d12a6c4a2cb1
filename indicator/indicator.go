// indicator/indicator.go
package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var ErrUnknownKind = errors.New("unknown indicator kind")

// Indicator is a binary on/off output toggled around each capture.
type Indicator interface {
	Set(on bool) error
	Close() error
}

type Config struct {
	Kind string
	// Path of the brightness/value file for the "file" kind.
	Path string
	// ToneHz and SampleRate for the "buzzer" kind.
	ToneHz     float64
	SampleRate int
}

// New builds the indicator selected by cfg.Kind.
func New(cfg Config, logger *slog.Logger) (Indicator, error) {
	switch cfg.Kind {
	case "", "log":
		return NewLog(logger), nil
	case "file":
		return NewFile(cfg.Path, logger)
	case "buzzer":
		return NewBuzzer(cfg.ToneHz, cfg.SampleRate, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, cfg.Kind)
	}
}

// logIndicator only records state changes.
type logIndicator struct {
	mu     sync.Mutex
	on     bool
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) Indicator {
	return &logIndicator{logger: logger}
}

func (l *logIndicator) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on != on {
		l.on = on
		l.logger.Debug("Indicator", "on", on)
	}
	return nil
}

func (l *logIndicator) Close() error { return nil }

// fileIndicator writes "1"/"0" to a sysfs LED brightness or GPIO value file,
// e.g. /sys/class/leds/led0/brightness.
type fileIndicator struct {
	path   string
	logger *slog.Logger
}

func NewFile(path string, logger *slog.Logger) (Indicator, error) {
	if path == "" {
		return nil, errors.New("file indicator: path is required")
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("file indicator: %w", err)
	}
	_ = f.Close()
	return &fileIndicator{path: path, logger: logger}, nil
}

func (f *fileIndicator) Set(on bool) error {
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	if err := os.WriteFile(f.path, value, 0); err != nil {
		return fmt.Errorf("file indicator: %w", err)
	}
	f.logger.Debug("Indicator", "on", on, "path", f.path)
	return nil
}

// Close leaves the output off.
func (f *fileIndicator) Close() error {
	return f.Set(false)
}
