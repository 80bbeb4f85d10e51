// Package imgconv interprets the pixel handles carried by types.Image.
//
// Handles are produced by the camera back-ends: *gocv.Mat (BGR, OpenCV),
// *image.RGBA aliasing GStreamer memory, or any other image.Image.
package imgconv

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ErrUnknownHandle is returned for a handle of a type no conversion understands.
var ErrUnknownHandle = errors.New("imgconv: unknown image handle")

// ToImage returns img as an image.Image. Image handles are returned as is, so
// the result may alias camera memory; Mat handles are copied out.
func ToImage(img types.Image) (image.Image, error) {
	switch h := img.Handle.(type) {
	case *gocv.Mat:
		if h.Empty() {
			return nil, errors.New("imgconv: empty mat")
		}
		out, err := h.ToImage()
		if err != nil {
			return nil, fmt.Errorf("failed to convert mat: %w", err)
		}
		return out, nil
	case image.Image:
		return h, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownHandle, img.Handle)
	}
}

// ToMat returns img as a 3-channel BGR Mat. The release func must be called
// once the Mat is no longer used; it is a no-op when the Mat is the handle itself.
func ToMat(img types.Image) (gocv.Mat, func(), error) {
	switch h := img.Handle.(type) {
	case *gocv.Mat:
		if h.Channels() == 3 {
			return *h, func() {}, nil
		}
		bgr := gocv.NewMat()
		code := gocv.ColorGrayToBGR
		if h.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		gocv.CvtColor(*h, &bgr, code)
		return bgr, func() { bgr.Close() }, nil
	case image.Image:
		m, err := gocv.ImageToMatRGB(h)
		if err != nil {
			return gocv.Mat{}, nil, fmt.Errorf("failed to convert image: %w", err)
		}
		return m, func() { m.Close() }, nil
	default:
		return gocv.Mat{}, nil, fmt.Errorf("%w: %T", ErrUnknownHandle, img.Handle)
	}
}

// EncodeJPEG compresses img at the given quality (1-100).
func EncodeJPEG(img types.Image, quality int) ([]byte, error) {
	if m, ok := img.Handle.(*gocv.Mat); ok {
		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *m, []int{gocv.IMWriteJpegQuality, quality})
		if err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
		defer buf.Close()
		return bytes.Clone(buf.GetBytes()), nil
	}

	src, err := ToImage(img)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	if err := imaging.Encode(&b, src, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return b.Bytes(), nil
}
