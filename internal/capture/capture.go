// Package capture provides the camera back-ends the pipeline source reads from.
package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/pipeline"
)

// New returns the camera back-end registered under name.
func New(backend string) (pipeline.Camera, error) {
	switch backend {
	case "gst":
		return GstCamera{}, nil
	case "gocv":
		return GocvCamera{}, nil
	case "ffmpeg":
		return FFmpegCamera{}, nil
	default:
		return nil, &config.Error{
			Field:  "camera-backend",
			Value:  backend,
			Reason: "must be one of " + strings.Join(config.CameraBackends, ", "),
		}
	}
}

// deviceIndex reports whether device names a numbered capture device ("0", "1", ...).
func deviceIndex(device string) (int, bool) {
	n, err := strconv.Atoi(device)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// devicePath maps a numbered device to its V4L2 node and passes paths through.
func devicePath(device string) string {
	if n, ok := deviceIndex(device); ok {
		return fmt.Sprintf("/dev/video%d", n)
	}
	return device
}
