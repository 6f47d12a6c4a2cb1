// protocols/websocket/reporter.go
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chilic/espcam-go/pkg/interfaces"
	"github.com/chilic/espcam-go/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var _ interfaces.Reporter = (*Reporter)(nil)

type Config struct {
	URL      string
	Token    string
	DeviceID string
	// ClientID identifies this process run. Generated when empty.
	ClientID         string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Reporter sends cycle events as JSON text messages. A failed dial or write
// drops the connection; the next dial waits for the backoff delay. Dial and
// write both stop at the deadline of the ctx passed to Report.
type Reporter struct {
	cfg     Config
	backoff utils.DelayStrategy
	clock   utils.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	nextDial time.Time
	closed   bool
}

func NewReporter(cfg Config, backoff utils.DelayStrategy, clock utils.Clock, logger *slog.Logger) *Reporter {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Reporter{
		cfg:     cfg,
		backoff: backoff,
		clock:   clock,
		logger:  logger,
	}
}

func (r *Reporter) Report(ctx context.Context, ev interfaces.CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return interfaces.ErrNotConnected
	}
	if r.conn == nil {
		if err := r.connectLocked(ctx); err != nil {
			return err
		}
	}

	if ev.DeviceID == "" {
		ev.DeviceID = r.cfg.DeviceID
	}
	deadline := time.Now().Add(r.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = r.conn.SetWriteDeadline(deadline)
	if err := r.conn.WriteJSON(ev); err != nil {
		r.dropLocked()
		r.nextDial = r.clock.Now().Add(r.backoff.NextDelay())
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	return nil
}

func (r *Reporter) connectLocked(ctx context.Context) error {
	now := r.clock.Now()
	if now.Before(r.nextDial) {
		return fmt.Errorf("%w: redial in %s", interfaces.ErrNotConnected, r.nextDial.Sub(now))
	}

	headers := http.Header{}
	if r.cfg.Token != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", r.cfg.Token))
	}
	headers.Set("Device-Id", r.cfg.DeviceID)
	headers.Set("Client-Id", r.cfg.ClientID)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: r.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, r.cfg.URL, headers)
	if err != nil {
		delay := r.backoff.NextDelay()
		r.nextDial = now.Add(delay)
		r.logger.Warn("Monitor connection failed", "error", err, "retry_in", delay)
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}

	r.backoff.Reset()
	r.conn = conn
	r.logger.Info("Monitor connected", "url", r.cfg.URL, "client_id", r.cfg.ClientID)

	go r.readPump(conn)
	return nil
}

// readPump drains server messages so control frames are answered, and notices
// when the peer goes away.
func (r *Reporter) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			if r.conn == conn {
				r.logger.Debug("Monitor connection lost", "error", err)
				r.dropLocked()
			}
			r.mu.Unlock()
			return
		}
		r.logger.Debug("Monitor message", "payload", string(data))
	}
}

func (r *Reporter) dropLocked() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// Connected reports whether a connection is currently held.
func (r *Reporter) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := r.conn.Close()
	r.conn = nil
	return err
}
