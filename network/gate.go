package network

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chilic/espcam-go/utils"
)

var (
	ErrNetworkInit  = errors.New("network stack initialization failed")
	ErrNotConnected = errors.New("network link not connected")
)

// LinkState is the association status of the device.
type LinkState int

const (
	Disconnected LinkState = iota
	Connecting
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// IPInfo is the address information of the interface the gate watches.
type IPInfo struct {
	Interface    string
	HardwareAddr string
	IP           net.IP
	Mask         net.IPMask
}

func (i IPInfo) String() string {
	ones, _ := i.Mask.Size()
	return i.Interface + " " + i.IP.String() + "/" + strconv.Itoa(ones) + " (" + i.HardwareAddr + ")"
}

// StatusSource is the underlying network stack.
type StatusSource interface {
	LinkState() (LinkState, error)
	IPInfo() (IPInfo, error)
	// Describe returns the current configuration for diagnostics.
	Describe() map[string]any
}

type GateConfig struct {
	PollInterval time.Duration
	// MaxDiagnostics caps the "waiting for station" lines logged per wait.
	MaxDiagnostics int
}

// Gate blocks the capture loop until the link is usable.
type Gate struct {
	src    StatusSource
	cfg    GateConfig
	clock  utils.Clock
	logger *slog.Logger

	mu    sync.RWMutex
	state LinkState
}

func NewGate(src StatusSource, cfg GateConfig, clock utils.Clock, logger *slog.Logger) *Gate {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxDiagnostics <= 0 {
		cfg.MaxDiagnostics = 60
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	return &Gate{
		src:    src,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		state:  Disconnected,
	}
}

// Poll performs one step: query the source, cache the state and return it.
// A source error counts as Disconnected.
func (g *Gate) Poll() LinkState {
	state, err := g.src.LinkState()
	if err != nil {
		g.logger.Debug("Link state query failed", "error", err)
		state = Disconnected
	}

	g.mu.Lock()
	old := g.state
	g.state = state
	g.mu.Unlock()

	if old != state {
		g.logger.Info("Link state changed", "from", old, "to", state)
	}
	return state
}

// State returns the last polled link state.
func (g *Gate) State() LinkState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// AwaitReady blocks until the link is Connected. There is no upper bound on the
// wait; only ctx cancellation returns early.
func (g *Gate) AwaitReady(ctx context.Context) error {
	emitted := 0
	for {
		if g.Poll() == Connected {
			if emitted > 0 {
				g.logger.Info("Should be connected now", "polls", emitted)
			}
			return nil
		}

		switch {
		case emitted < g.cfg.MaxDiagnostics:
			g.logger.Info("Waiting for station", "state", g.State(), "config", g.src.Describe())
		case emitted == g.cfg.MaxDiagnostics:
			g.logger.Warn("Still waiting for station, suppressing further diagnostics",
				"polls", emitted)
		}
		emitted++

		if err := g.clock.Sleep(ctx, g.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// QueryIPInfo returns the assigned address. Only valid once Connected.
func (g *Gate) QueryIPInfo() (IPInfo, error) {
	if g.State() != Connected {
		return IPInfo{}, ErrNotConnected
	}
	return g.src.IPInfo()
}
