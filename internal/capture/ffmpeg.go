package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/andresmejia3/jetstreamer/internal/utils"
	"github.com/disintegration/imaging"
)

const megabyte = 1024 * 1024

// FFmpegCamera reads an MJPEG stream from an ffmpeg subprocess and decodes
// each frame. V4L2 nodes are opened with the v4l2 demuxer; other inputs
// (files, URLs) are probed by ffmpeg.
type FFmpegCamera struct{}

// ffmpegArgs builds the ffmpeg command line for device at width x height.
func ffmpegArgs(width, height int, device string) []string {
	input := devicePath(device)
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(input, "/dev/") {
		args = append(args, "-f", "v4l2", "-video_size", fmt.Sprintf("%dx%d", width, height))
	}
	args = append(args, "-i", input)
	// Scale explicitly so non-V4L2 inputs honour the requested size too.
	args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

func (FFmpegCamera) Open(width, height int, device string) (pipeline.Session, error) {
	if err := utils.RequireBinary("ffmpeg"); err != nil {
		return nil, err
	}
	cmd := utils.NewSafeCommand("ffmpeg", ffmpegArgs(width, height, device)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return newFFmpegSession(cmd, out), nil
}

func newFFmpegSession(cmd *utils.SafeCommand, out io.ReadCloser) *ffmpegSession {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(SplitJpeg)
	return &ffmpegSession{cmd: cmd, out: out, scanner: scanner}
}

type ffmpegSession struct {
	cmd     *utils.SafeCommand
	out     io.ReadCloser
	scanner *bufio.Scanner
	waited  bool
	closed  bool
}

func (s *ffmpegSession) CaptureZeroCopy(ctx context.Context) (types.Image, error) {
	if s.closed {
		return types.Image{}, pipeline.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return types.Image{}, err
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return types.Image{}, fmt.Errorf("frame scanner failed: %w", err)
		}
		return types.Image{}, s.wait()
	}

	img, err := imaging.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	b := img.Bounds()
	return types.Image{Handle: img, Width: b.Dx(), Height: b.Dy()}, nil
}

// wait reaps ffmpeg once its output ends. A clean exit is the end of the stream.
func (s *ffmpegSession) wait() error {
	if s.waited {
		return io.EOF
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, strings.TrimSpace(s.cmd.Stderr.String()))
	}
	return io.EOF
}

func (s *ffmpegSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.out.Close()
	if s.waited {
		return nil
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.waited = true
	// Killed on purpose; the exit status carries no information.
	_ = s.cmd.Wait()
	return nil
}
