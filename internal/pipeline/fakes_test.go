package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/types"
)

// fakeClock only moves when told to or when slept on.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeCamera struct {
	session *fakeSession
	err     error
	opened  int
	device  string
}

func (c *fakeCamera) Open(width, height int, device string) (Session, error) {
	c.opened++
	c.device = device
	if c.err != nil {
		return nil, c.err
	}
	c.session.width, c.session.height = width, height
	return c.session, nil
}

// fakeSession serves frames from one reused buffer, like a zero-copy camera.
type fakeSession struct {
	frames int // captures before io.EOF; 0 means unlimited
	failAt int // capture index that fails; -1 disables
	width  int
	height int

	buf      *image.RGBA
	captures int
	closed   int
}

func newFakeSession(frames int) *fakeSession {
	return &fakeSession{frames: frames, failAt: -1}
}

func (s *fakeSession) CaptureZeroCopy(ctx context.Context) (types.Image, error) {
	if err := ctx.Err(); err != nil {
		return types.Image{}, err
	}
	if s.frames > 0 && s.captures >= s.frames {
		return types.Image{}, io.EOF
	}
	if s.captures == s.failAt {
		s.captures++
		return types.Image{}, errors.New("capture timeout")
	}
	if s.buf == nil {
		s.buf = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	}
	s.captures++
	return types.Image{Handle: s.buf, Width: s.width, Height: s.height}, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeClassifier struct {
	clock  *fakeClock
	cost   time.Duration
	failOn int
	calls  int
	closed bool
}

func (c *fakeClassifier) Classify(img types.Image) (int, float32, error) {
	n := c.calls
	c.calls++
	if c.clock != nil {
		c.clock.Advance(c.cost)
	}
	if c.failOn > 0 && n == c.failOn {
		return 0, 0, errors.New("inference failed")
	}
	return 7, 0.5, nil
}

func (c *fakeClassifier) Close() error {
	c.closed = true
	return nil
}

type fakeDetector struct {
	detections []types.Detection
	closed     bool
}

func (d *fakeDetector) Detect(img types.Image) ([]types.Detection, error) {
	return d.detections, nil
}

func (d *fakeDetector) Close() error {
	d.closed = true
	return nil
}

type fakeEncoder struct {
	paths   []string
	handles []any
	onSave  func(n int)
}

func (e *fakeEncoder) Save(path string, img types.Image) error {
	e.paths = append(e.paths, path)
	e.handles = append(e.handles, img.Handle)
	if e.onSave != nil {
		e.onSave(len(e.paths))
	}
	return nil
}

type fakeStore struct {
	records []types.FrameRecord
}

func (s *fakeStore) InsertFrame(ctx context.Context, rec types.FrameRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type countingProgress struct{ n int }

func (p *countingProgress) Add(n int) error {
	p.n += n
	return nil
}
