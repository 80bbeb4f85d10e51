package inference

import (
	"fmt"
	"image"
	"slices"

	"github.com/andresmejia3/jetstreamer/internal/imgconv"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"gocv.io/x/gocv"
)

// dnnNet runs a network with OpenCV's dnn module.
type dnnNet struct {
	net  gocv.Net
	model Network
}

func loadDNN(n Network) (*dnnNet, error) {
	net := gocv.ReadNet(n.Model, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", n.Model)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &dnnNet{net: net, model: n}, nil
}

// forward returns a copy of the output tensor and its shape.
func (d *dnnNet) forward(img types.Image) ([]float32, []int, error) {
	mat, release, err := imgconv.ToMat(img)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	mean := gocv.NewScalar(d.model.Mean[0], d.model.Mean[1], d.model.Mean[2], 0)
	size := image.Pt(d.model.InputWidth, d.model.InputHeight)
	blob := gocv.BlobFromImage(mat, d.model.Scale, size, mean, d.model.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read output: %w", err)
	}
	return slices.Clone(data), output.Size(), nil
}

func (d *dnnNet) Close() error {
	return d.net.Close()
}

// DNNClassifier classifies with OpenCV dnn.
type DNNClassifier struct {
	*dnnNet
}

func NewDNNClassifier(n Network) (*DNNClassifier, error) {
	d, err := loadDNN(n)
	if err != nil {
		return nil, err
	}
	return &DNNClassifier{d}, nil
}

func (c *DNNClassifier) Classify(img types.Image) (int, float32, error) {
	scores, _, err := c.forward(img)
	if err != nil {
		return 0, 0, err
	}
	return topClass(scores, c.model.Layout)
}

// DNNDetector detects with OpenCV dnn.
type DNNDetector struct {
	*dnnNet
	decoder
}

func NewDNNDetector(n Network, labels []string, threshold float64) (*DNNDetector, error) {
	d, err := loadDNN(n)
	if err != nil {
		return nil, err
	}
	return &DNNDetector{dnnNet: d, decoder: decoder{net: n, labels: labels, threshold: float32(threshold)}}, nil
}

func (d *DNNDetector) Detect(img types.Image) ([]types.Detection, error) {
	data, shape, err := d.forward(img)
	if err != nil {
		return nil, err
	}
	return d.decode(data, shape, img.Width, img.Height)
}
