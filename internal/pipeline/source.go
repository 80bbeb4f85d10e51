package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/types"
)

// SourceOptions configures a camera source.
type SourceOptions struct {
	Width    int
	Height   int
	Device   string
	Interval *big.Rat // nil captures as fast as the pipeline pulls
	Clock    Clock
	Stats    *Stats
}

// Source produces frames from a camera session, optionally paced to a fixed interval.
type Source struct {
	session  Session
	interval time.Duration
	clock    Clock
	stats    *Stats
	log      *slog.Logger

	counter  uint64
	last     time.Time
	captured bool
	closed   bool
}

// NewSource validates the interval and opens an exclusive camera session.
// The session is held until Close.
func NewSource(cam Camera, opts SourceOptions, log *slog.Logger) (*Source, error) {
	log = orDiscard(log)
	if err := config.CheckInterval(opts.Interval); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}

	name := opts.Device
	if name == config.IntegratedCamera {
		name = "CSI camera"
	}
	log.Info(fmt.Sprintf("created %dx%d camera source from %s", opts.Width, opts.Height, name))

	session, err := cam.Open(opts.Width, opts.Height, opts.Device)
	if err != nil {
		return nil, &CapabilityError{Capability: "camera", Name: opts.Device, Err: err}
	}

	return &Source{
		session:  session,
		interval: config.IntervalDuration(opts.Interval),
		clock:    opts.Clock,
		stats:    opts.Stats,
		log:      log,
	}, nil
}

// Next captures the next frame. With an interval set it first waits for the
// next slot on the interval grid, dropping the slots it is already late for.
func (s *Source) Next(ctx context.Context) (*types.Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.interval > 0 && s.captured {
		if err := s.waitForInterval(ctx); err != nil {
			return nil, err
		}
	}

	img, err := s.session.CaptureZeroCopy(ctx)
	if err != nil {
		// An interrupt also reaches camera subprocesses, which then end their stream.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Stage: "source", Fnum: s.counter, Err: err}
	}

	now := s.clock.Now()
	frame := types.NewFrame(s.counter, epochSeconds(now), img)
	s.stats.emitted.Add(1)
	s.stats.lastFnum.Store(s.counter)
	s.counter++
	s.last = now
	s.captured = true
	return frame, nil
}

// waitForInterval sleeps until last+interval. If that moment has already
// passed, every slot that elapsed is consumed without being emitted so the
// next frame lands back on the grid instead of drifting.
func (s *Source) waitForInterval(ctx context.Context) error {
	sleepUntil := s.last.Add(s.interval)
	if late := s.clock.Now().Sub(sleepUntil); late > 0 {
		missed := uint64((late + s.interval - 1) / s.interval)
		s.log.Warn(fmt.Sprintf("missed frame target interval (%v), dropping frames %d-%d", s.interval, s.counter, s.counter+missed-1),
			"dropped", missed,
		)
		s.counter += missed
		s.stats.dropped.Add(missed)
		sleepUntil = sleepUntil.Add(time.Duration(missed) * s.interval)
	}
	return s.clock.Sleep(ctx, sleepUntil.Sub(s.clock.Now()))
}

// Close releases the camera session.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.session.Close(); err != nil {
		return fmt.Errorf("close camera session: %w", err)
	}
	return nil
}
