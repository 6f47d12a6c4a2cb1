package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gocv.io/x/gocv"
)

// GocvDriver captures through OpenCV (V4L2 on Linux) and encodes each frame to JPEG.
// The encoded bytes live in a native buffer owned by OpenCV until it is closed.
type GocvDriver struct {
	logger *slog.Logger
	cam    *gocv.VideoCapture
	img    gocv.Mat
	params []int
}

type gocvHandle struct {
	buf *gocv.NativeByteBuffer
}

func (h *gocvHandle) Bytes() []byte { return h.buf.GetBytes() }

func NewGocvDriver(logger *slog.Logger) *GocvDriver {
	return &GocvDriver{logger: logger}
}

func (d *GocvDriver) Name() string { return "gocv" }

func (d *GocvDriver) Init(cfg Config) error {
	var device interface{} = cfg.Device
	if cfg.Device == "" {
		device = 0
	} else if id, err := strconv.Atoi(cfg.Device); err == nil {
		device = id
	}

	cam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("open video capture %v: %w", device, err)
	}
	if !cam.IsOpened() {
		_ = cam.Close()
		return fmt.Errorf("video capture %v not opened", device)
	}

	if cfg.Width > 0 {
		cam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		cam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	// One queued buffer, so every capture is a fresh frame.
	cam.Set(gocv.VideoCaptureBufferSize, 1)

	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	d.cam = cam
	d.img = gocv.NewMat()
	d.params = []int{int(gocv.IMWriteJpegQuality), quality}
	d.logger.Debug("gocv capture opened", "device", device, "quality", quality)
	return nil
}

func (d *GocvDriver) Capture() (Handle, error) {
	if d.cam == nil {
		return nil, errors.New("gocv driver not initialized")
	}
	if ok := d.cam.Read(&d.img); !ok || d.img.Empty() {
		return nil, nil
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, d.img, d.params)
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	if buf == nil {
		return nil, nil
	}
	return &gocvHandle{buf: buf}, nil
}

func (d *GocvDriver) Release(h Handle) {
	if gh, ok := h.(*gocvHandle); ok && gh.buf != nil {
		gh.buf.Close()
		gh.buf = nil
	}
}

func (d *GocvDriver) Close() error {
	if d.cam == nil {
		return nil
	}
	_ = d.img.Close()
	err := d.cam.Close()
	d.cam = nil
	return err
}
