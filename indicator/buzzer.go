package indicator

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// Buzzer plays a sine tone on the default PortAudio output while on.
type Buzzer struct {
	toneHz     float64
	sampleRate float64
	phase      float64
	on         atomic.Bool
	logger     *slog.Logger
	stream     *portaudio.Stream
}

func NewBuzzer(toneHz float64, sampleRate int, logger *slog.Logger) (*Buzzer, error) {
	if toneHz <= 0 {
		toneHz = 2000
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	b := &Buzzer{
		toneHz:     toneHz,
		sampleRate: float64(sampleRate),
		logger:     logger,
	}

	stream, err := portaudio.OpenDefaultStream(
		0,               // no input
		1,               // mono output
		b.sampleRate,    // sample rate
		0,               // let PortAudio pick the buffer size
		b.audioCallback, // fills each buffer
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	b.stream = stream
	return b, nil
}

// audioCallback runs on the PortAudio thread.
func (b *Buzzer) audioCallback(out []float32) {
	if !b.on.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}
	b.phase = fillTone(out, b.phase, b.toneHz/b.sampleRate)
}

// fillTone writes a half-amplitude sine and returns the phase to continue from.
func fillTone(out []float32, phase, step float64) float64 {
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*phase))
		phase += step
		if phase >= 1 {
			phase--
		}
	}
	return phase
}

func (b *Buzzer) Set(on bool) error {
	if b.on.Swap(on) != on {
		b.logger.Debug("Indicator", "on", on, "tone_hz", b.toneHz)
	}
	return nil
}

func (b *Buzzer) Close() error {
	b.on.Store(false)
	if b.stream != nil {
		if err := b.stream.Stop(); err != nil {
			b.logger.Error("failed to stop audio stream", "error", err)
		}
		if err := b.stream.Close(); err != nil {
			b.logger.Error("failed to close audio stream", "error", err)
		}
	}
	return portaudio.Terminate()
}
