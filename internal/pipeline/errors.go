package pipeline

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("pipeline: stage closed")

// CapabilityError reports a camera, network or encoder that failed to initialize.
type CapabilityError struct {
	Capability string
	Name       string
	Err        error
}

func (e *CapabilityError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q failed to initialize: %v", e.Capability, e.Name, e.Err)
	}
	return fmt.Sprintf("%s failed to initialize: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// FrameError reports a capture, inference or write failure on a single frame.
// It terminates the run; frames are never retried.
type FrameError struct {
	Stage string
	Fnum  uint64
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s failed on frame %d: %v", e.Stage, e.Fnum, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
