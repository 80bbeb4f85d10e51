// Package pipeline implements the frame pipeline: one source, optional
// classification and detection transforms, and a sink that persists frames.
//
// Stages are pull based. The sink asks its upstream for the next frame, which
// cascades back to the camera capture. A single frame is in flight at a time
// and it is the same *types.Frame that every stage annotates and forwards.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/types"
)

// Stage is a pull-based frame iterator.
type Stage interface {
	// Next returns the next frame, io.EOF once the sequence is exhausted,
	// or the error that terminated the pipeline.
	Next(ctx context.Context) (*types.Frame, error)

	// Close releases the stage and everything upstream of it. Idempotent.
	Close() error
}

// Camera opens capture sessions.
type Camera interface {
	Open(width, height int, device string) (Session, error)
}

// Session is an exclusive, open camera.
type Session interface {
	// CaptureZeroCopy returns a handle into the session's own pixel memory.
	// The handle is invalidated by the next capture and by Close.
	CaptureZeroCopy(ctx context.Context) (types.Image, error)
	Close() error
}

// Classifier assigns a single class to an image.
type Classifier interface {
	Classify(img types.Image) (classID int, confidence float32, err error)
	Close() error
}

// Detector finds objects in an image.
type Detector interface {
	Detect(img types.Image) ([]types.Detection, error)
	Close() error
}

// Encoder persists an image; the format follows the path extension.
type Encoder interface {
	Save(path string, img types.Image) error
}

// RecordStore mirrors written frames somewhere other than the sidecar log.
type RecordStore interface {
	InsertFrame(ctx context.Context, rec types.FrameRecord) error
}

// Progress is notified once per written frame.
type Progress interface {
	Add(n int) error
}

type (
	ClassifierFactory func(network string, args ...string) (Classifier, error)
	DetectorFactory   func(network string, args []string, threshold float64) (Detector, error)
)

// Clock abstracts time for interval pacing.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done. Non-positive durations return immediately.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
