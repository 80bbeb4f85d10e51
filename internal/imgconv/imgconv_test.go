package imgconv

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/andresmejia3/jetstreamer/internal/types"
)

func rgbaFrame(w, h int) types.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return types.Image{Handle: img, Width: w, Height: h}
}

func TestToImagePassesThroughImages(t *testing.T) {
	frame := rgbaFrame(4, 3)
	got, err := ToImage(frame)
	if err != nil {
		t.Fatalf("ToImage failed: %v", err)
	}
	if got != frame.Handle {
		t.Error("Expected the handle itself, got a copy")
	}
}

func TestUnknownHandle(t *testing.T) {
	frame := types.Image{Handle: []byte{1, 2, 3}}
	if _, err := ToImage(frame); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("ToImage: expected ErrUnknownHandle, got %v", err)
	}
	if _, _, err := ToMat(frame); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("ToMat: expected ErrUnknownHandle, got %v", err)
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(rgbaFrame(16, 8), 90)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Fatalf("Output is not a JPEG: % X", data[:4])
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 16 || cfg.Height != 8 {
		t.Errorf("Expected 16x8, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestToMatFromImage(t *testing.T) {
	m, release, err := ToMat(rgbaFrame(5, 4))
	if err != nil {
		t.Fatalf("ToMat failed: %v", err)
	}
	defer release()
	if m.Cols() != 5 || m.Rows() != 4 || m.Channels() != 3 {
		t.Errorf("Expected 5x4x3 mat, got %dx%dx%d", m.Cols(), m.Rows(), m.Channels())
	}
}
