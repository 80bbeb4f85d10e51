package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andresmejia3/jetstreamer/internal/config"
)

// Capabilities are the hardware and inference bindings the pipeline is built from.
type Capabilities struct {
	Camera        Camera
	NewClassifier ClassifierFactory // required when classifying
	NewDetector   DetectorFactory   // required when detecting
	Encoder       Encoder

	Store    RecordStore
	Progress Progress
	Clock    Clock
	Stats    *Stats
}

// RunSummary counts the frames of a finished run.
type RunSummary struct {
	Emitted uint64
	Dropped uint64
	Written uint64
}

// Build validates cfg and assembles source -> classifier -> detector.
// If any stage fails to construct, the stages already built are closed.
func Build(cfg config.Config, caps Capabilities, log *slog.Logger) (Stage, error) {
	log = orDiscard(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if caps.Camera == nil {
		return nil, errors.New("pipeline: no camera capability")
	}

	var chain Stage
	src, err := NewSource(caps.Camera, SourceOptions{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Device:   cfg.Camera,
		Interval: cfg.Interval,
		Clock:    caps.Clock,
		Stats:    caps.Stats,
	}, log.With("component", "source"))
	if err != nil {
		return nil, err
	}
	chain = src

	if cfg.Classify != "" {
		if caps.NewClassifier == nil {
			chain.Close()
			return nil, &CapabilityError{Capability: "classifier", Name: cfg.Classify, Err: errors.New("no classifier back-end")}
		}
		c, err := NewClassifier(chain, caps.NewClassifier, cfg.Classify, cfg.ClassifyArgs, log.With("component", "classifier"))
		if err != nil {
			chain.Close()
			return nil, err
		}
		chain = c
	}

	if cfg.Detect != "" {
		if caps.NewDetector == nil {
			chain.Close()
			return nil, &CapabilityError{Capability: "detector", Name: cfg.Detect, Err: errors.New("no detector back-end")}
		}
		d, err := NewDetector(chain, caps.NewDetector, cfg.Detect, cfg.DetectArgs, cfg.DetectThreshold, log.With("component", "detector"))
		if err != nil {
			chain.Close()
			return nil, err
		}
		chain = d
	}

	return chain, nil
}

// Run builds the chain and drains it into a sink that writes under
// cfg.BaseFilename. The chain is closed before Run returns.
func Run(ctx context.Context, cfg config.Config, caps Capabilities, log *slog.Logger) (RunSummary, error) {
	log = orDiscard(log)
	if caps.Stats == nil {
		caps.Stats = &Stats{}
	}

	chain, err := Build(cfg, caps, log)
	if err != nil {
		return RunSummary{}, err
	}

	sink := &Sink{
		BaseFilename: cfg.BaseFilename,
		Separator:    cfg.Separator,
		Extension:    cfg.Format,
		Encoder:      caps.Encoder,
		Store:        caps.Store,
		Progress:     caps.Progress,
		Stats:        caps.Stats,
		Log:          log.With("component", "sink"),
	}
	_, runErr := sink.Run(ctx, chain)
	closeErr := chain.Close()

	snap := caps.Stats.Snapshot()
	summary := RunSummary{Emitted: snap.Emitted, Dropped: snap.Dropped, Written: snap.Written}

	if runErr != nil {
		if closeErr != nil {
			log.Warn("failed to close pipeline", "err", closeErr)
		}
		return summary, runErr
	}
	if closeErr != nil {
		return summary, fmt.Errorf("close pipeline: %w", closeErr)
	}
	return summary, nil
}
