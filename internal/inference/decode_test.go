package inference

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/andresmejia3/jetstreamer/internal/config"
)

func TestTopClass(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float32
		layout   string
		wantID   int
		wantConf float32
	}{
		{"Probabilities", []float32{0.1, 0.7, 0.2}, LayoutSoftmax, 1, 0.7},
		{"Logits", []float32{0, float32(math.Log(3)), 0}, LayoutLogits, 1, 0.6},
		{"First wins ties", []float32{0.5, 0.5}, LayoutSoftmax, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, conf, err := topClass(tt.scores, tt.layout)
			if err != nil {
				t.Fatal(err)
			}
			if id != tt.wantID {
				t.Errorf("Expected class %d, got %d", tt.wantID, id)
			}
			if math.Abs(float64(conf-tt.wantConf)) > 1e-5 {
				t.Errorf("Expected confidence %v, got %v", tt.wantConf, conf)
			}
		})
	}

	if _, _, err := topClass(nil, LayoutSoftmax); err == nil {
		t.Error("Expected an error for empty output")
	}
}

func TestDecodeSSD(t *testing.T) {
	d := decoder{net: Network{Layout: LayoutSSD}, labels: []string{"background", "person"}, threshold: 0.5}
	data := []float32{
		0, 1, 0.9, 0.25, 0.25, 0.5, 0.75, // kept
		0, 1, 0.4, 0, 0, 1, 1, // below threshold
		0, 7, 0.8, -0.1, 0.5, 1.2, 1, // clamped, unlabeled
		0, 1, 0.9, 1.1, 0, 1.5, 1, // outside the image
	}

	got, err := d.decode(data, []int{1, 1, 4, 7}, 200, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(got))
	}
	if got[0].Label != "person" || got[0].Left != 50 || got[0].Top != 25 || got[0].Right != 100 || got[0].Bottom != 75 {
		t.Errorf("Unexpected first detection %+v", got[0])
	}
	if got[1].Label != "" || got[1].Left != 0 || got[1].Right != 200 {
		t.Errorf("Expected a clamped unlabeled box, got %+v", got[1])
	}
}

func TestDecodeYOLOv8(t *testing.T) {
	d := decoder{
		net:       Network{Layout: LayoutYOLOv8, InputWidth: 100, InputHeight: 100, NMS: 0.45},
		labels:    []string{"person", "dog"},
		threshold: float32(config.DefaultDetectThreshold),
	}
	// Three boxes, two classes: channels = 4 + 2, laid out [channel][box].
	const boxes = 3
	data := []float32{
		50, 52, 20, // cx
		50, 50, 80, // cy
		20, 20, 10, // w
		20, 20, 10, // h
		0.9, 0.8, 0.1, // person
		0.1, 0.1, 0.3, // dog
	}

	got, err := d.decode(data, []int{1, 6, boxes}, 200, 200)
	if err != nil {
		t.Fatal(err)
	}
	// Box 1 overlaps box 0 and loses NMS; box 2 is below threshold.
	if len(got) != 1 {
		t.Fatalf("Expected 1 detection, got %d: %+v", len(got), got)
	}
	want := image.Rect(80, 80, 120, 120)
	g := got[0]
	if g.Label != "person" || int(g.Left) != want.Min.X || int(g.Top) != want.Min.Y || int(g.Right) != want.Max.X || int(g.Bottom) != want.Max.Y {
		t.Errorf("Unexpected detection %+v", g)
	}
}

func TestDecodeShapeErrors(t *testing.T) {
	d := decoder{net: Network{Layout: LayoutYOLOv8}}
	if _, err := d.decode(nil, []int{1, 84}, 1, 1); err == nil {
		t.Error("Expected a shape error")
	}
	d.net.Layout = LayoutSoftmax
	if _, err := d.decode(nil, nil, 1, 1); err == nil {
		t.Error("Expected a layout error")
	}
}

func TestFillCHW(t *testing.T) {
	pix := []uint8{
		10, 20, 30, 255,
		40, 50, 60, 255,
	}
	n := Network{InputWidth: 2, InputHeight: 1, Scale: 0.5, Mean: [3]float64{10, 10, 10}}

	bgr := make([]float32, 6)
	fillCHW(bgr, pix, n)
	if want := []float32{10, 25, 5, 20, 0, 15}; !equal(bgr, want) {
		t.Errorf("BGR: got %v, want %v", bgr, want)
	}

	n.SwapRB = true
	rgb := make([]float32, 6)
	fillCHW(rgb, pix, n)
	if want := []float32{0, 15, 5, 20, 10, 25}; !equal(rgb, want) {
		t.Errorf("RGB: got %v, want %v", rgb, want)
	}
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewFactories(t *testing.T) {
	cfg := config.Default()
	cfg.ModelDir = t.TempDir()

	for _, backend := range config.Backends {
		cfg.Backend = backend
		classify, detect, closer, err := NewFactories(cfg)
		if err != nil {
			t.Fatalf("%s: NewFactories failed: %v", backend, err)
		}
		if classify == nil || detect == nil || closer == nil {
			t.Fatalf("%s: expected both factories and a closer", backend)
		}
		// Nothing exists in the model dir and no worker script is set.
		if _, err := classify("googlenet"); err == nil {
			t.Errorf("%s: expected classifier construction to fail", backend)
		}
		if _, err := detect("pednet", nil, 0.5); err == nil {
			t.Errorf("%s: expected detector construction to fail", backend)
		}
		if err := closer.Close(); err != nil {
			t.Errorf("%s: Close failed: %v", backend, err)
		}
	}

	cfg.Backend = "tensorrt"
	_, _, _, err := NewFactories(cfg)
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected *config.Error, got %v", err)
	}
}
