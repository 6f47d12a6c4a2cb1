package upload

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultWindowSize is the response window, the same 3048 bytes the firmware read.
const DefaultWindowSize = 3048

var ErrUpload = errors.New("upload failed")

// Step names the point of the exchange that failed.
type Step string

const (
	StepConnect Step = "connect"
	StepRequest Step = "request"
	StepWrite   Step = "write"
	StepFlush   Step = "flush"
	StepSubmit  Step = "submit"
	StepRead    Step = "read"
	StepDrain   Step = "drain"
)

// Error is returned by Upload. It matches ErrUpload and unwraps to the cause.
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrUpload, e.Err}
}

func stepErr(step Step, err error) error {
	return &Error{Step: step, Err: err}
}

// Outcome describes a completed exchange. Window holds at most WindowSize bytes
// of the response body; the rest was read and discarded.
type Outcome struct {
	StatusCode int
	Status     string
	Window     []byte
	Truncated  bool
	TotalBytes int64
}

type Config struct {
	// RootCAs verifies https endpoints. Nil means the system roots.
	RootCAs *x509.CertPool
	// WindowSize bounds the memory used to read the response.
	WindowSize int
	// Timeout is a deadline for the whole exchange. Zero waits forever.
	Timeout     time.Duration
	DialTimeout time.Duration
}

// Uploader performs one POST per call on a fresh connection.
type Uploader struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Uploader {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Uploader{cfg: cfg, logger: logger}
}

// Upload sends req and reads the whole response through a fixed window.
func (u *Uploader) Upload(ctx context.Context, req Request) (Outcome, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return Outcome{}, stepErr(StepConnect, err)
	}

	conn, err := u.dial(ctx, target)
	if err != nil {
		return Outcome{}, stepErr(StepConnect, err)
	}
	defer conn.Close()

	if u.cfg.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(u.cfg.Timeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	w := bufio.NewWriterSize(conn, u.cfg.WindowSize)
	if err := writeHead(w, target, req.Headers); err != nil {
		return Outcome{}, stepErr(StepRequest, err)
	}
	if _, err := w.Write(req.Body); err != nil {
		return Outcome{}, stepErr(StepWrite, err)
	}
	if err := w.Flush(); err != nil {
		return Outcome{}, stepErr(StepFlush, err)
	}
	u.logger.Debug("-> POST", "host", target.Host, "body_bytes", len(req.Body))

	resp, err := http.ReadResponse(bufio.NewReaderSize(conn, u.cfg.WindowSize), nil)
	if err != nil {
		return Outcome{}, stepErr(StepSubmit, err)
	}
	defer resp.Body.Close()

	window := make([]byte, u.cfg.WindowSize)
	head, total, step, err := consume(resp.Body, window)
	if err != nil {
		return Outcome{}, stepErr(step, err)
	}

	return Outcome{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Window:     window[:head],
		Truncated:  total > int64(head),
		TotalBytes: total,
	}, nil
}

func (u *Uploader) dial(ctx context.Context, target *url.URL) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: u.cfg.DialTimeout}

	switch target.Scheme {
	case "https":
		d := &tls.Dialer{
			NetDialer: netDialer,
			Config: &tls.Config{
				RootCAs:    u.cfg.RootCAs,
				ServerName: target.Hostname(),
				MinVersion: tls.VersionTLS12,
			},
		}
		return d.DialContext(ctx, "tcp", hostPort(target, "443"))
	case "http":
		return netDialer.DialContext(ctx, "tcp", hostPort(target, "80"))
	default:
		return nil, fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
}

func hostPort(target *url.URL, defaultPort string) string {
	if target.Port() != "" {
		return target.Host
	}
	return net.JoinHostPort(target.Hostname(), defaultPort)
}

func writeHead(w *bufio.Writer, target *url.URL, headers []Header) error {
	if _, err := fmt.Fprintf(w, "POST %s HTTP/1.1\r\nhost: %s\r\n", target.RequestURI(), target.Host); err != nil {
		return err
	}
	for _, h := range headers {
		if !validHeader(h) {
			return fmt.Errorf("invalid header %q", h.Name)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func validHeader(h Header) bool {
	if h.Name == "" || strings.ContainsAny(h.Name, " :\r\n") {
		return false
	}
	return !strings.ContainsAny(h.Value, "\r\n")
}

// consume fills window once, then reads the rest into a scratch buffer of the
// same size, discarding, until a zero-length read or EOF. head is the number of
// bytes kept in window.
func consume(r io.Reader, window []byte) (head int, total int64, step Step, err error) {
	head, done, err := readWindow(r, window)
	total = int64(head)
	if err != nil {
		return head, total, StepRead, err
	}
	if done {
		return head, total, "", nil
	}

	scratch := make([]byte, len(window))
	for {
		n, err := r.Read(scratch)
		total += int64(n)
		if err == io.EOF || (n == 0 && err == nil) {
			return head, total, "", nil
		}
		if err != nil {
			return head, total, StepDrain, err
		}
	}
}

// readWindow reads until buf is full or the body ends. A short read is the end
// of the window, not an error.
func readWindow(r io.Reader, buf []byte) (n int, done bool, err error) {
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err == io.EOF || (m == 0 && err == nil) {
			return n, true, nil
		}
		if err != nil {
			return n, false, err
		}
	}
	return n, false, nil
}
