package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const gstSinkName = "sink"

// GstDriver pulls JPEG samples from a GStreamer pipeline ending in an appsink
// named "sink". A handle keeps its buffer mapped until Release unmaps it.
type GstDriver struct {
	logger   *slog.Logger
	pipeline *gst.Pipeline
	sink     *app.Sink
}

type gstHandle struct {
	buffer *gst.Buffer
	data   []byte
}

func (h *gstHandle) Bytes() []byte { return h.data }

func NewGstDriver(logger *slog.Logger) *GstDriver {
	return &GstDriver{logger: logger}
}

func (d *GstDriver) Name() string { return "gstreamer" }

// LaunchLine returns the pipeline description used for cfg.
func LaunchLine(cfg Config) string {
	if cfg.Pipeline != "" {
		return cfg.Pipeline
	}
	device := cfg.Device
	if device == "" {
		device = "0"
	}
	if _, err := strconv.Atoi(device); err == nil {
		device = "/dev/video" + device
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! video/x-raw,width=%d,height=%d ! "+
			"jpegenc quality=%d ! appsink name=%s max-buffers=1 drop=true sync=false",
		device, cfg.Width, cfg.Height, quality, gstSinkName,
	)
}

func (d *GstDriver) Init(cfg Config) error {
	gst.Init(nil)

	launch := LaunchLine(cfg)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName(gstSinkName)
	if err != nil {
		return fmt.Errorf("pipeline has no appsink named %q: %w", gstSinkName, err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		return fmt.Errorf("element %q is not an appsink", gstSinkName)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.pipeline = pipeline
	d.sink = sink
	d.logger.Debug("gstreamer pipeline playing", "launch", launch)
	return nil
}

func (d *GstDriver) Capture() (Handle, error) {
	if d.sink == nil {
		return nil, errors.New("gstreamer driver not initialized")
	}

	sample := d.sink.PullSample()
	if sample == nil {
		return nil, nil
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, nil
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil, nil
	}
	return &gstHandle{buffer: buffer, data: mapInfo.Bytes()}, nil
}

func (d *GstDriver) Release(h Handle) {
	if gh, ok := h.(*gstHandle); ok && gh.buffer != nil {
		gh.buffer.Unmap()
		gh.buffer = nil
		gh.data = nil
	}
}

func (d *GstDriver) Close() error {
	if d.pipeline == nil {
		return nil
	}
	err := d.pipeline.SetState(gst.StateNull)
	d.pipeline = nil
	d.sink = nil
	return err
}
