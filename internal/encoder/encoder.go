// Package encoder writes frames to image files.
package encoder

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/imgconv"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Encoder saves images in the format named by the file extension.
// OpenCV Mats are written by OpenCV; everything else goes through imaging.
type Encoder struct {
	JPEGQuality int
}

func New(jpegQuality int) *Encoder {
	return &Encoder{JPEGQuality: jpegQuality}
}

func (e *Encoder) Save(path string, img types.Image) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !slices.Contains(config.FormatChoices, ext) {
		return &config.Error{Field: "format", Value: ext, Reason: "unsupported image extension"}
	}

	if m, ok := img.Handle.(*gocv.Mat); ok {
		var params []int
		if ext == "jpg" {
			params = []int{gocv.IMWriteJpegQuality, e.JPEGQuality}
		}
		if !gocv.IMWriteWithParams(path, *m, params) {
			return fmt.Errorf("failed to write %s", path)
		}
		return nil
	}

	src, err := imgconv.ToImage(img)
	if err != nil {
		return err
	}
	if err := imaging.Save(src, path, imaging.JPEGQuality(e.JPEGQuality)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
