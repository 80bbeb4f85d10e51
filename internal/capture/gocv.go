package capture

import (
	"context"
	"fmt"
	"io"

	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"gocv.io/x/gocv"
)

// GocvCamera captures through OpenCV's VideoCapture. Numbered devices open by
// index; anything else is handed to OpenCV as a path or URL.
type GocvCamera struct{}

func (GocvCamera) Open(width, height int, device string) (pipeline.Session, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if n, ok := deviceIndex(device); ok {
		vc, err = gocv.OpenVideoCapture(n)
	} else {
		vc, err = gocv.OpenVideoCapture(device)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %s: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture %s is not opened", device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	mat := gocv.NewMat()
	return &gocvSession{device: device, vc: vc, mat: &mat}, nil
}

// gocvSession reads every frame into the same Mat.
type gocvSession struct {
	device string
	vc     *gocv.VideoCapture
	mat    *gocv.Mat
	closed bool
}

func (s *gocvSession) CaptureZeroCopy(ctx context.Context) (types.Image, error) {
	if s.closed {
		return types.Image{}, pipeline.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return types.Image{}, err
	}
	if ok := s.vc.Read(s.mat); !ok || s.mat.Empty() {
		return types.Image{}, fmt.Errorf("%s: no more frames: %w", s.device, io.EOF)
	}
	return types.Image{Handle: s.mat, Width: s.mat.Cols(), Height: s.mat.Rows()}, nil
}

func (s *gocvSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
