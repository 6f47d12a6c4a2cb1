package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chilic/espcam-go/camera"
	"github.com/chilic/espcam-go/indicator"
	"github.com/chilic/espcam-go/multipart"
	"github.com/chilic/espcam-go/network"
	"github.com/chilic/espcam-go/pkg/interfaces"
	"github.com/chilic/espcam-go/upload"
	"github.com/chilic/espcam-go/utils"
	"github.com/google/uuid"
)

// Gate is satisfied by *network.Gate.
type Gate interface {
	AwaitReady(ctx context.Context) error
	QueryIPInfo() (network.IPInfo, error)
}

// Uploader is satisfied by *upload.Uploader.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (upload.Outcome, error)
}

type LoopConfig struct {
	// URL of the sendPhoto endpoint, bot token included.
	URL          string
	ChatID       string
	Boundary     string
	Filename     string
	MaxBodyBytes int
	SettleDelay  time.Duration
	DeviceID     string

	// ReportTimeout bounds the time a cycle spends handing its event to the
	// reporter, dial included.
	ReportTimeout time.Duration
}

// NewLoopConfig derives the loop settings from cfg.
func NewLoopConfig(cfg Config) LoopConfig {
	return LoopConfig{
		URL:          cfg.SendPhotoURL(),
		ChatID:       cfg.Telegram.ChatID,
		Boundary:     cfg.Upload.Boundary,
		Filename:     cfg.Upload.Filename,
		MaxBodyBytes: cfg.Upload.MaxBodyBytes,
		SettleDelay:  cfg.Loop.SettleDelay,
		DeviceID:     cfg.Monitor.DeviceID,

		ReportTimeout: cfg.Monitor.ReportTimeout,
	}
}

// Components are the collaborators of a Loop. Indicator and Reporter may be nil.
type Components struct {
	Gate      Gate
	Camera    *camera.Acquirer
	Uploader  Uploader
	Indicator indicator.Indicator
	Reporter  interfaces.Reporter
	Clock     utils.Clock
	Delay     utils.DelayStrategy
}

// Loop runs capture cycles one after another, forever.
type Loop struct {
	cfg       LoopConfig
	gate      Gate
	camera    *camera.Acquirer
	uploader  Uploader
	indicator indicator.Indicator
	reporter  interfaces.Reporter
	clock     utils.Clock
	delay     utils.DelayStrategy
	logger    *slog.Logger

	cycle uint64
}

func NewLoop(cfg LoopConfig, c Components, logger *slog.Logger) *Loop {
	if cfg.Boundary == "" {
		cfg.Boundary = multipart.DefaultBoundary
	}
	if cfg.Filename == "" {
		cfg.Filename = "hoge.jpg"
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 2 * time.Second
	}
	if c.Indicator == nil {
		c.Indicator = indicator.NewLog(logger)
	}
	if c.Reporter == nil {
		c.Reporter = interfaces.NopReporter{}
	}
	if c.Clock == nil {
		c.Clock = utils.SystemClock()
	}
	if c.Delay == nil {
		c.Delay = utils.NewFixedDelay(10 * time.Second)
	}
	return &Loop{
		cfg:       cfg,
		gate:      c.Gate,
		camera:    c.Camera,
		uploader:  c.Uploader,
		indicator: c.Indicator,
		reporter:  c.Reporter,
		clock:     c.Clock,
		delay:     c.Delay,
		logger:    logger,
	}
}

// Run repeats RunCycle with the inter-cycle delay until ctx is done. Cycle
// failures are logged and never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Capture loop started", "endpoint", RedactURL(l.cfg.URL))
	for {
		if _, err := l.RunCycle(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.clock.Sleep(ctx, l.delay.NextDelay()); err != nil {
			return err
		}
	}
}

// RunCycle performs one wait, capture, encode and upload pass. The returned
// event is also handed to the reporter unless ctx ended the cycle.
func (l *Loop) RunCycle(ctx context.Context) (interfaces.CycleEvent, error) {
	l.cycle++
	ev := interfaces.CycleEvent{
		Cycle:    l.cycle,
		TraceID:  uuid.NewString(),
		DeviceID: l.cfg.DeviceID,
	}
	log := l.logger.With("cycle", ev.Cycle, "trace_id", ev.TraceID)

	if err := l.gate.AwaitReady(ctx); err != nil {
		return ev, err
	}
	if info, err := l.gate.QueryIPInfo(); err != nil {
		log.Warn("Failed to query IP info", "error", err)
	} else {
		log.Info("Network ready", "ip", info.String())
	}

	body, frameBytes, err := l.capture(ctx, log)
	ev.FrameBytes = frameBytes
	if err != nil {
		if ctx.Err() != nil {
			return ev, err
		}
		ev.Stage = interfaces.StageCaptureUnavailable
		if errors.Is(err, ErrBodyTooLarge) {
			ev.Stage = interfaces.StageEncodeFailed
		}
		log.Warn("Capture failed", "stage", ev.Stage, "error", err)
		l.report(ctx, log, &ev, err)
		return ev, err
	}
	ev.BodyBytes = len(body)

	req := upload.NewRequest(l.cfg.URL, l.cfg.Boundary, body)
	out, err := l.uploader.Upload(ctx, req)
	if err != nil {
		ev.Stage = interfaces.StageUploadFailed
		var uerr *upload.Error
		if errors.As(err, &uerr) {
			log.Error("Upload failed", "step", uerr.Step, "error", RedactURL(uerr.Err.Error()))
		} else {
			log.Error("Upload failed", "error", RedactURL(err.Error()))
		}
		l.report(ctx, log, &ev, err)
		return ev, err
	}

	ev.Stage = interfaces.StageUploaded
	ev.StatusCode = out.StatusCode
	attrs := []any{
		"status", out.StatusCode,
		"frame_bytes", frameBytes,
		"body_bytes", len(body),
		"response_bytes", out.TotalBytes,
		"truncated", out.Truncated,
		"response", strings.ToValidUTF8(string(out.Window), "\uFFFD"),
	}
	if out.StatusCode < http.StatusOK || out.StatusCode >= http.StatusMultipleChoices {
		log.Warn("Upload rejected", attrs...)
	} else {
		log.Info("Upload complete", attrs...)
	}
	l.report(ctx, log, &ev, nil)
	return ev, nil
}

// capture lights the indicator, waits for the sensor to settle, then encodes
// the frame while it is held. The body is a copy, so the frame is released
// before the upload starts.
func (l *Loop) capture(ctx context.Context, log *slog.Logger) (body []byte, frameBytes int, err error) {
	l.setIndicator(log, true)
	lit := true
	defer func() {
		if lit {
			l.setIndicator(log, false)
		}
	}()

	if err := l.clock.Sleep(ctx, l.cfg.SettleDelay); err != nil {
		return nil, 0, err
	}

	err = l.camera.WithFrame(func(f *camera.Frame) error {
		l.setIndicator(log, false)
		lit = false

		frameBytes = f.Len()
		log.Debug("Frame acquired", "bytes", frameBytes, "width", f.Width, "height", f.Height)
		body, err = l.encode(f.Bytes())
		return err
	})
	return body, frameBytes, err
}

func (l *Loop) encode(jpeg []byte) ([]byte, error) {
	text := multipart.TextField{Name: "chat_id", Value: l.cfg.ChatID}
	bin := multipart.BinaryField{Name: "photo", Filename: l.cfg.Filename, Value: jpeg}

	if n := multipart.EncodedLength(l.cfg.Boundary, text, bin); l.cfg.MaxBodyBytes > 0 && n > l.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrBodyTooLarge, n, l.cfg.MaxBodyBytes)
	}
	return multipart.Encode(l.cfg.Boundary, text, bin), nil
}

func (l *Loop) setIndicator(log *slog.Logger, on bool) {
	if err := l.indicator.Set(on); err != nil {
		log.Warn("Indicator failed", "on", on, "error", err)
	}
}

func (l *Loop) report(ctx context.Context, log *slog.Logger, ev *interfaces.CycleEvent, err error) {
	if err != nil {
		ev.Error = RedactURL(err.Error())
	}
	ev.Timestamp = l.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.ReportTimeout)
	defer cancel()
	if rerr := l.reporter.Report(ctx, *ev); rerr != nil {
		log.Debug("Cycle report dropped", "error", rerr)
	}
}
