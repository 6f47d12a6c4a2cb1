// camera/interface.go
package camera

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrPeripheralInit     = errors.New("camera peripheral initialization failed")
	ErrAlreadyInitialized = errors.New("camera already initialized")
	ErrNotInitialized     = errors.New("camera not initialized")
	ErrCaptureUnavailable = errors.New("camera frame unavailable")
	ErrFrameOutstanding   = errors.New("previous frame not released")
	ErrUnknownDriver      = errors.New("unknown camera driver")
)

// PixelFormat of a captured frame. The capture pipeline only requests JPEG.
type PixelFormat string

const FormatJPEG PixelFormat = "jpeg"

// Config is handed to the driver unchanged.
type Config struct {
	Device      string
	Width       int
	Height      int
	JPEGQuality int
	// Pipeline overrides the GStreamer launch line.
	Pipeline string
}

// Handle is a driver-owned frame buffer. Its bytes stay valid until the driver
// gets the handle back through Release.
type Handle interface {
	Bytes() []byte
}

// Driver is the camera peripheral.
type Driver interface {
	Init(cfg Config) error
	// Capture returns a nil handle when no frame could be grabbed. A non-nil
	// handle returned together with an error is released by the caller.
	Capture() (Handle, error)
	Release(h Handle)
	Close() error
	Name() string
}

// NewDriver returns the driver registered under name.
func NewDriver(name string, logger *slog.Logger) (Driver, error) {
	switch name {
	case "gocv", "":
		return NewGocvDriver(logger), nil
	case "gstreamer":
		return NewGstDriver(logger), nil
	case "fake":
		return NewFakeDriver(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
}
