package camera

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Acquirer owns the camera peripheral and lends out one frame at a time.
type Acquirer struct {
	mu          sync.Mutex
	driver      Driver
	cfg         Config
	logger      *slog.Logger
	initialized bool
	outstanding bool
	stats       Stats
}

// Stats counts driver handles. Released always catches up with Acquired once
// the borrowed frame is returned.
type Stats struct {
	Acquired    uint64
	Released    uint64
	Unavailable uint64
}

func NewAcquirer(driver Driver, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		driver: driver,
		logger: logger,
	}
}

// Initialize performs the one-time peripheral setup.
func (a *Acquirer) Initialize(cfg Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return ErrAlreadyInitialized
	}
	if err := a.driver.Init(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPeripheralInit, a.driver.Name(), err)
	}

	a.cfg = cfg
	a.initialized = true
	a.logger.Info("Camera ready",
		"driver", a.driver.Name(),
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height)
	return nil
}

// Acquire grabs one frame. The caller must Release it; WithFrame does that for you.
func (a *Acquirer) Acquire() (*Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}
	if a.outstanding {
		return nil, ErrFrameOutstanding
	}

	h, err := a.driver.Capture()
	if err != nil {
		// A handle that came with an error still belongs to the driver.
		if h != nil {
			a.stats.Acquired++
			a.driver.Release(h)
			a.stats.Released++
		}
		a.stats.Unavailable++
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if h == nil {
		a.stats.Unavailable++
		return nil, ErrCaptureUnavailable
	}

	a.stats.Acquired++
	data := h.Bytes()
	if len(data) == 0 {
		a.driver.Release(h)
		a.stats.Released++
		a.stats.Unavailable++
		return nil, fmt.Errorf("%w: empty buffer", ErrCaptureUnavailable)
	}

	a.outstanding = true
	return &Frame{
		acquirer:   a,
		handle:     h,
		data:       data,
		Format:     FormatJPEG,
		Width:      a.cfg.Width,
		Height:     a.cfg.Height,
		CapturedAt: time.Now(),
	}, nil
}

// WithFrame acquires a frame, runs fn and releases the frame on every exit path,
// panics included. Nothing is released when acquisition fails.
func (a *Acquirer) WithFrame(fn func(f *Frame) error) error {
	f, err := a.Acquire()
	if err != nil {
		return err
	}
	defer f.Release()
	return fn(f)
}

func (a *Acquirer) release(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.driver.Release(h)
	a.stats.Released++
	a.outstanding = false
}

func (a *Acquirer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Acquirer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}
	a.initialized = false
	return a.driver.Close()
}

// Frame is a borrowed view on a driver buffer.
type Frame struct {
	acquirer *Acquirer
	handle   Handle
	data     []byte
	once     sync.Once

	Format     PixelFormat
	Width      int
	Height     int
	CapturedAt time.Time
}

// Bytes returns the frame contents, or nil once the frame has been released.
// Copy what must outlive the release.
func (f *Frame) Bytes() []byte {
	return f.data
}

func (f *Frame) Len() int {
	return len(f.data)
}

// Release hands the buffer back to the driver. Extra calls do nothing.
func (f *Frame) Release() {
	f.once.Do(func() {
		f.data = nil
		f.acquirer.release(f.handle)
		f.handle = nil
	})
}
