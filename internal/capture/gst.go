package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pollInterval bounds how long a capture blocks before re-checking the context.
const pollInterval = 100 * time.Millisecond

// GstCamera captures through a GStreamer pipeline ending in an RGBA appsink.
// Device "0" is the on-board CSI camera; anything else is a V4L2 device.
type GstCamera struct{}

// gstPipeline returns the launch line for device at width x height.
func gstPipeline(width, height int, device string) string {
	sink := "appsink name=sink max-buffers=1 drop=true sync=false"
	if device == config.IntegratedCamera {
		return fmt.Sprintf(
			"nvarguscamerasrc ! "+
				"video/x-raw(memory:NVMM),width=%d,height=%d,framerate=30/1 ! "+
				"nvvidconv ! video/x-raw,format=RGBA ! %s",
			width, height, sink,
		)
	}
	return fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! videoscale ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d,framerate=30/1 ! %s",
		devicePath(device), width, height, sink,
	)
}

func (GstCamera) Open(width, height int, device string) (pipeline.Session, error) {
	gst.Init(nil)

	p, err := gst.NewPipelineFromString(gstPipeline(width, height, device))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	elem, err := p.GetElementByName("sink")
	if err != nil {
		p.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to find appsink: %w", err)
	}
	if err := p.SetState(gst.StatePlaying); err != nil {
		p.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to set pipeline to playing: %w", err)
	}

	return &gstSession{
		pipeline: p,
		sink:     app.SinkFromElement(elem),
		width:    width,
		height:   height,
	}, nil
}

type gstSession struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	width    int
	height   int

	// The sample and buffer backing the last returned image. They stay mapped
	// until the next capture so the image can alias GStreamer memory.
	sample *gst.Sample
	buffer *gst.Buffer
	closed bool
}

func (s *gstSession) CaptureZeroCopy(ctx context.Context) (types.Image, error) {
	if s.closed {
		return types.Image{}, pipeline.ErrClosed
	}
	s.release()

	for {
		if err := ctx.Err(); err != nil {
			return types.Image{}, err
		}
		sample := s.sink.TryPullSample(pollInterval)
		if sample != nil {
			return s.mapSample(sample)
		}
		if s.sink.IsEOS() {
			return types.Image{}, io.EOF
		}
		if err := s.busError(); err != nil {
			return types.Image{}, err
		}
	}
}

func (s *gstSession) mapSample(sample *gst.Sample) (types.Image, error) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return types.Image{}, errors.New("sample carries no buffer")
	}
	data := buffer.Map(gst.MapRead).AsUint8Slice()
	stride := s.width * 4
	if len(data) < stride*s.height {
		buffer.Unmap()
		return types.Image{}, fmt.Errorf("short frame: %d bytes for %dx%d RGBA", len(data), s.width, s.height)
	}
	s.sample, s.buffer = sample, buffer

	img := &image.RGBA{
		Pix:    data,
		Stride: stride,
		Rect:   image.Rect(0, 0, s.width, s.height),
	}
	return types.Image{Handle: img, Width: s.width, Height: s.height}, nil
}

// busError drains pending bus messages and returns the first pipeline error.
func (s *gstSession) busError() error {
	bus := s.pipeline.GetPipelineBus()
	for msg := bus.Pop(); msg != nil; msg = bus.Pop() {
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			return fmt.Errorf("gstreamer: %s (%s)", gerr.Error(), gerr.DebugString())
		}
	}
	return nil
}

func (s *gstSession) release() {
	if s.buffer != nil {
		s.buffer.Unmap()
	}
	s.sample, s.buffer = nil, nil
}

func (s *gstSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to stop pipeline: %w", err)
	}
	return nil
}
