package camera

import (
	"bytes"
	"errors"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newInitialized(t *testing.T, d *FakeDriver) *Acquirer {
	t.Helper()
	a := NewAcquirer(d, discardLogger())
	if err := a.Initialize(Config{Width: 64, Height: 48}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return a
}

func TestInitializeOnce(t *testing.T) {
	d := NewFakeDriver()
	a := newInitialized(t, d)

	if err := a.Initialize(Config{}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize() error = %v; want ErrAlreadyInitialized", err)
	}
	if inits, _, _, _ := d.Counts(); inits != 1 {
		t.Fatalf("driver Init calls = %d; want 1", inits)
	}
}

func TestInitializeFailureIsPeripheralInitError(t *testing.T) {
	d := NewFakeDriver()
	d.InitErr = errors.New("status 0x105")
	a := NewAcquirer(d, discardLogger())

	err := a.Initialize(Config{})
	if !errors.Is(err, ErrPeripheralInit) {
		t.Fatalf("Initialize() error = %v; want ErrPeripheralInit", err)
	}
	if !strings.Contains(err.Error(), "status 0x105") {
		t.Fatalf("error %q should carry the driver status", err)
	}
	if _, err := a.Acquire(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Acquire() after failed init error = %v; want ErrNotInitialized", err)
	}
}

func TestAcquireNilHandleIsUnavailable(t *testing.T) {
	d := NewFakeDriver(nil)
	a := newInitialized(t, d)

	f, err := a.Acquire()
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("Acquire() error = %v; want ErrCaptureUnavailable", err)
	}
	if f != nil {
		t.Fatal("expected nil frame")
	}
	if _, _, releases, _ := d.Counts(); releases != 0 {
		t.Fatalf("releases = %d; want 0 when acquisition failed", releases)
	}
	if got := a.Stats().Unavailable; got != 1 {
		t.Fatalf("Unavailable = %d; want 1", got)
	}
}

func TestAcquireEmptyBufferIsReturnedToDriver(t *testing.T) {
	d := NewFakeDriver([]byte{})
	a := newInitialized(t, d)

	if _, err := a.Acquire(); !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("Acquire() error = %v; want ErrCaptureUnavailable", err)
	}
	_, _, releases, outstanding := d.Counts()
	if releases != 1 || outstanding != 0 {
		t.Fatalf("releases=%d outstanding=%d; want 1 and 0", releases, outstanding)
	}
	st := a.Stats()
	if st.Acquired != st.Released {
		t.Fatalf("stats = %+v; acquired and released must match", st)
	}
}

// erroringDriver hands out a real buffer together with a capture error.
type erroringDriver struct {
	*FakeDriver
}

func (d erroringDriver) Capture() (Handle, error) {
	h, err := d.FakeDriver.Capture()
	if err != nil {
		return nil, err
	}
	return h, errors.New("partial frame")
}

func TestAcquireHandleWithErrorIsReturnedToDriver(t *testing.T) {
	fake := NewFakeDriver([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	a := NewAcquirer(erroringDriver{fake}, discardLogger())
	if err := a.Initialize(Config{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	f, err := a.Acquire()
	if !errors.Is(err, ErrCaptureUnavailable) || f != nil {
		t.Fatalf("Acquire() = %v, %v; want nil, ErrCaptureUnavailable", f, err)
	}
	_, captures, releases, outstanding := fake.Counts()
	if captures != 1 || releases != 1 || outstanding != 0 {
		t.Fatalf("captures=%d releases=%d outstanding=%d; want 1, 1, 0", captures, releases, outstanding)
	}
	st := a.Stats()
	if st.Acquired != 1 || st.Released != 1 || st.Unavailable != 1 {
		t.Fatalf("stats = %+v", st)
	}

	// The acquirer is not left holding a frame.
	if _, err := a.Acquire(); errors.Is(err, ErrFrameOutstanding) {
		t.Fatalf("second Acquire() error = %v", err)
	}
}

func TestFrameReleaseIsIdempotent(t *testing.T) {
	d := NewFakeDriver([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	a := newInitialized(t, d)

	f, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := f.Len(); got != 4 {
		t.Fatalf("Len() = %d; want 4", got)
	}

	f.Release()
	f.Release()

	if f.Bytes() != nil {
		t.Fatal("Bytes() must be nil after release")
	}
	if _, _, releases, _ := d.Counts(); releases != 1 {
		t.Fatalf("driver releases = %d; want 1", releases)
	}
}

func TestAcquireWhileOutstanding(t *testing.T) {
	d := NewFakeDriver([]byte{1}, []byte{2})
	a := newInitialized(t, d)

	f, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := a.Acquire(); !errors.Is(err, ErrFrameOutstanding) {
		t.Fatalf("second Acquire() error = %v; want ErrFrameOutstanding", err)
	}
	f.Release()

	g, err := a.Acquire()
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	g.Release()
}

func TestWithFrameReleasesOnEveryPath(t *testing.T) {
	frame := bytes.Repeat([]byte{0xAB}, 1024)
	boom := errors.New("encode failed")

	tests := []struct {
		name    string
		frames  [][]byte
		fn      func(*Frame) error
		wantErr error
		panics  bool
	}{
		{
			name:   "success",
			frames: [][]byte{frame},
			fn:     func(*Frame) error { return nil },
		},
		{
			name:    "callback_error",
			frames:  [][]byte{frame},
			fn:      func(*Frame) error { return boom },
			wantErr: boom,
		},
		{
			name:   "callback_panic",
			frames: [][]byte{frame},
			fn:     func(*Frame) error { panic("driver glitch") },
			panics: true,
		},
		{
			name:    "acquire_failure",
			frames:  [][]byte{nil},
			fn:      func(*Frame) error { t.Fatal("callback must not run"); return nil },
			wantErr: ErrCaptureUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewFakeDriver(tt.frames...)
			a := newInitialized(t, d)

			func() {
				defer func() {
					if r := recover(); (r != nil) != tt.panics {
						t.Fatalf("recover() = %v; panics=%v", r, tt.panics)
					}
				}()
				err := a.WithFrame(tt.fn)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("WithFrame() error = %v; want %v", err, tt.wantErr)
				}
			}()

			st := a.Stats()
			_, _, releases, outstanding := d.Counts()
			if st.Acquired != st.Released || uint64(releases) != st.Released {
				t.Fatalf("stats = %+v, driver releases = %d", st, releases)
			}
			if outstanding != 0 {
				t.Fatalf("outstanding buffers = %d; want 0", outstanding)
			}
		})
	}
}

func TestWithFrameCopyOutlivesRelease(t *testing.T) {
	d := NewFakeDriver([]byte("jpeg-bytes"))
	a := newInitialized(t, d)

	var kept []byte
	var view []byte
	err := a.WithFrame(func(f *Frame) error {
		view = f.Bytes()
		kept = append([]byte(nil), f.Bytes()...)
		return nil
	})
	if err != nil {
		t.Fatalf("WithFrame() error = %v", err)
	}

	if string(kept) != "jpeg-bytes" {
		t.Fatalf("copy = %q; want %q", kept, "jpeg-bytes")
	}
	// The fake driver scribbles over released buffers.
	if bytes.Equal(view, kept) {
		t.Fatal("borrowed view should be invalid after release")
	}
}

func TestFakeDriverTestCardIsJPEG(t *testing.T) {
	a := newInitialized(t, NewFakeDriver())

	err := a.WithFrame(func(f *Frame) error {
		if f.Format != FormatJPEG {
			t.Fatalf("Format = %q; want jpeg", f.Format)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(f.Bytes()))
		if err != nil {
			return err
		}
		if cfg.Width != 64 || cfg.Height != 48 {
			t.Fatalf("test card = %dx%d; want 64x48", cfg.Width, cfg.Height)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithFrame() error = %v", err)
	}
}

func TestCloseShutsDriver(t *testing.T) {
	d := NewFakeDriver()
	a := newInitialized(t, d)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !d.Closed() {
		t.Fatal("driver not closed")
	}
}

func TestNewDriver(t *testing.T) {
	for _, name := range []string{"gocv", "gstreamer", "fake"} {
		d, err := NewDriver(name, discardLogger())
		if err != nil {
			t.Fatalf("NewDriver(%q) error = %v", name, err)
		}
		if got := d.Name(); got != name {
			t.Fatalf("Name() = %q; want %q", got, name)
		}
	}
	if _, err := NewDriver("esp32", discardLogger()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("NewDriver(esp32) error = %v; want ErrUnknownDriver", err)
	}
}

func TestLaunchLine(t *testing.T) {
	got := LaunchLine(Config{Device: "2", Width: 1600, Height: 1200, JPEGQuality: 90})
	for _, want := range []string{"device=/dev/video2", "width=1600,height=1200", "jpegenc quality=90", "appsink name=sink"} {
		if !strings.Contains(got, want) {
			t.Fatalf("launch line %q missing %q", got, want)
		}
	}

	custom := "libcamerasrc ! jpegenc ! appsink name=sink"
	if got := LaunchLine(Config{Pipeline: custom}); got != custom {
		t.Fatalf("LaunchLine() = %q; want override %q", got, custom)
	}
}
