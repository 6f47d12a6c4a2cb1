package camera

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// FakeDriver serves scripted frames. With no script it renders a gradient test
// card, which makes it usable for dry runs on a machine without a camera.
// A nil entry in Frames simulates the driver returning no buffer.
type FakeDriver struct {
	mu sync.Mutex

	Frames  [][]byte
	InitErr error

	cfg      Config
	next     int
	inited   int
	captures int
	released int
	live     map[*fakeHandle]bool
	closed   bool
}

type fakeHandle struct {
	data []byte
}

func (h *fakeHandle) Bytes() []byte { return h.data }

func NewFakeDriver(frames ...[]byte) *FakeDriver {
	return &FakeDriver{Frames: frames}
}

func (d *FakeDriver) Name() string { return "fake" }

func (d *FakeDriver) Init(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inited++
	if d.InitErr != nil {
		return d.InitErr
	}
	d.cfg = cfg
	d.live = make(map[*fakeHandle]bool)
	return nil
}

func (d *FakeDriver) Capture() (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures++

	var data []byte
	if len(d.Frames) == 0 {
		var err error
		if data, err = testCard(d.cfg); err != nil {
			return nil, err
		}
	} else {
		data = d.Frames[d.next%len(d.Frames)]
		d.next++
		if data == nil {
			return nil, nil
		}
	}

	h := &fakeHandle{data: append([]byte(nil), data...)}
	d.live[h] = true
	return h, nil
}

func (d *FakeDriver) Release(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fh, ok := h.(*fakeHandle)
	if !ok || !d.live[fh] {
		panic(errors.New("fake camera: release of unknown or already released buffer"))
	}
	delete(d.live, fh)
	// Scribble over the buffer so a use-after-release shows up in tests.
	for i := range fh.data {
		fh.data[i] = 0xEE
	}
	d.released++
}

func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Counts reports init, capture and release calls, and buffers not yet returned.
func (d *FakeDriver) Counts() (inits, captures, releases, outstanding int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inited, d.captures, d.released, len(d.live)
}

func (d *FakeDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func testCard(cfg Config) ([]byte, error) {
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = 320, 240
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
