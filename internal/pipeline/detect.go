package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andresmejia3/jetstreamer/internal/types"
)

// DetectStage annotates every frame with the objects found by a detection network.
type DetectStage struct {
	src      Stage
	detector Detector
	closed   bool
}

// NewDetector constructs the network and wraps src. The threshold is handed
// to the factory as is.
func NewDetector(src Stage, factory DetectorFactory, network string, args []string, threshold float64, log *slog.Logger) (*DetectStage, error) {
	log = orDiscard(log)
	log.Info(fmt.Sprintf("created detector element with '%s' network", network), "threshold", threshold)

	d, err := factory(network, args, threshold)
	if err != nil {
		return nil, &CapabilityError{Capability: "detector", Name: network, Err: err}
	}
	return &DetectStage{src: src, detector: d}, nil
}

func (s *DetectStage) Next(ctx context.Context) (*types.Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	frame, err := s.src.Next(ctx)
	if err != nil {
		return nil, err
	}

	detections, err := s.detector.Detect(frame.Image)
	if err != nil {
		return nil, &FrameError{Stage: "detector", Fnum: frame.Fnum(), Err: err}
	}
	if detections == nil {
		detections = []types.Detection{}
	}
	if err := frame.Annotate("detections", detections); err != nil {
		return nil, err
	}
	return frame, nil
}

func (s *DetectStage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.detector.Close(), s.src.Close())
}
