// pkg/interfaces/reporter.go
package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrNotConnected     = errors.New("not connected")
)

// Reporter publishes one event per capture cycle. Implementations must not block
// the cycle for long and their errors never fail it.
type Reporter interface {
	Report(ctx context.Context, ev CycleEvent) error
	Close() error
}

type Stage string

const (
	StageCaptureUnavailable Stage = "capture_unavailable"
	StageEncodeFailed       Stage = "encode_failed"
	StageUploadFailed       Stage = "upload_failed"
	StageUploaded           Stage = "uploaded"
)

type CycleEvent struct {
	Cycle      uint64    `json:"cycle"`
	TraceID    string    `json:"trace_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	Stage      Stage     `json:"stage"`
	FrameBytes int       `json:"frame_bytes,omitempty"`
	BodyBytes  int       `json:"body_bytes,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Report(context.Context, CycleEvent) error { return nil }

func (NopReporter) Close() error { return nil }
