package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andresmejia3/jetstreamer/internal/types"
)

// ClassifyStage annotates every frame with the top class of a classification network.
type ClassifyStage struct {
	src        Stage
	classifier Classifier
	closed     bool
}

// NewClassifier constructs the network and wraps src. On failure src is left
// open; the caller owns it.
func NewClassifier(src Stage, factory ClassifierFactory, network string, args []string, log *slog.Logger) (*ClassifyStage, error) {
	log = orDiscard(log)
	log.Info(fmt.Sprintf("created classifier element with '%s' network", network))

	c, err := factory(network, args...)
	if err != nil {
		return nil, &CapabilityError{Capability: "classifier", Name: network, Err: err}
	}
	return &ClassifyStage{src: src, classifier: c}, nil
}

func (s *ClassifyStage) Next(ctx context.Context) (*types.Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	frame, err := s.src.Next(ctx)
	if err != nil {
		return nil, err
	}

	cid, confidence, err := s.classifier.Classify(frame.Image)
	if err != nil {
		return nil, &FrameError{Stage: "classifier", Fnum: frame.Fnum(), Err: err}
	}
	if err := frame.Annotate("cid", cid); err != nil {
		return nil, err
	}
	if err := frame.Annotate("confidence", confidence); err != nil {
		return nil, err
	}
	return frame, nil
}

// Close releases the network and then everything upstream.
func (s *ClassifyStage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.classifier.Close(), s.src.Close())
}
