package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/types"
)

// Sink writes every frame of a sequence to disk: one image file per frame and
// one JSON line per frame in the sidecar log.
type Sink struct {
	BaseFilename string
	Separator    string
	Extension    string

	Encoder  Encoder
	Store    RecordStore // optional
	Progress Progress    // optional
	Stats    *Stats      // optional
	Log      *slog.Logger
}

// Run drains src until it is exhausted, the context is cancelled or a stage
// fails. The sidecar is truncated before the first frame is pulled and closed
// on every return path. It returns the number of frames written.
func (s *Sink) Run(ctx context.Context, src Stage) (int, error) {
	log := orDiscard(s.Log)
	if !slices.Contains(config.FormatChoices, s.Extension) {
		return 0, &config.Error{Field: "format", Value: s.Extension, Reason: "unsupported image extension"}
	}
	if s.Encoder == nil {
		return 0, errors.New("pipeline: sink has no encoder")
	}
	sep := s.Separator
	if s.BaseFilename == "" {
		sep = ""
	}

	sidecarPath := config.SidecarName(s.BaseFilename)
	f, err := os.Create(sidecarPath)
	if err != nil {
		return 0, fmt.Errorf("open metadata log: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	written := 0
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Whatever was already written stays readable.
			_ = w.Flush()
			return written, err
		}

		if err := s.write(ctx, w, frame, sep); err != nil {
			_ = w.Flush()
			return written, err
		}
		written++

		if fnum := frame.Fnum(); fnum%10 == 0 {
			log.Info("wrote frame", "fnum", fnum)
		}
	}

	if err := w.Flush(); err != nil {
		return written, fmt.Errorf("flush metadata log: %w", err)
	}
	if err := f.Close(); err != nil {
		return written, fmt.Errorf("close metadata log: %w", err)
	}
	return written, nil
}

func (s *Sink) write(ctx context.Context, w *bufio.Writer, frame *types.Frame, sep string) error {
	fnum := frame.Fnum()

	line, err := json.Marshal(frame.Meta)
	if err != nil {
		return &FrameError{Stage: "sink", Fnum: fnum, Err: err}
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return &FrameError{Stage: "sink", Fnum: fnum, Err: err}
	}
	// The record reaches the file before its image is written.
	if err := w.Flush(); err != nil {
		return &FrameError{Stage: "sink", Fnum: fnum, Err: err}
	}

	path := config.ImagePath(s.BaseFilename, sep, fnum, s.Extension)
	if err := s.Encoder.Save(path, frame.Image); err != nil {
		return &FrameError{Stage: "sink", Fnum: fnum, Err: err}
	}

	if s.Store != nil {
		rec := types.FrameRecord{
			Fnum:      fnum,
			Timestamp: frame.Timestamp(),
			ImagePath: path,
			Metadata:  line,
		}
		if err := s.Store.InsertFrame(ctx, rec); err != nil {
			return &FrameError{Stage: "store", Fnum: fnum, Err: err}
		}
	}
	if s.Progress != nil {
		_ = s.Progress.Add(1)
	}
	if s.Stats != nil {
		s.Stats.written.Add(1)
	}
	return nil
}
