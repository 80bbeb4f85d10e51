package inference

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/andresmejia3/jetstreamer/internal/imgconv"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// Runtime owns the process-wide onnxruntime environment.
type Runtime struct {
	mu      sync.Mutex
	libPath string
	started bool
}

func NewRuntime(libPath string) *Runtime {
	return &Runtime{libPath: libPath}
}

// init starts the environment on first use.
func (r *Runtime) init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if r.libPath != "" {
		ort.SetSharedLibraryPath(r.libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	r.started = true
	return nil
}

// Close destroys the environment. Sessions must be destroyed first.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	return ort.DestroyEnvironment()
}

// onnxNet is an advanced session bound to fixed input and output tensors.
type onnxNet struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   []int
	model   Network
}

func loadONNX(rt *Runtime, n Network) (*onnxNet, error) {
	if err := rt.init(); err != nil {
		return nil, err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(n.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model %s: %w", n.Model, err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("model %s: expected one input and at least one output", n.Model)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(runtime.NumCPU())

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(n.InputHeight), int64(n.InputWidth)))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outShape := fixedShape(outputs[0].Dimensions)
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		n.Model,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	shape := make([]int, len(outShape))
	for i, d := range outShape {
		shape[i] = int(d)
	}
	return &onnxNet{session: session, input: inputTensor, output: outputTensor, shape: shape, model: n}, nil
}

// fixedShape pins dynamic dimensions (batch) to 1.
func fixedShape(dims ort.Shape) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func (o *onnxNet) forward(img types.Image) ([]float32, error) {
	src, err := imgconv.ToImage(img)
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(src, o.model.InputWidth, o.model.InputHeight, imaging.Linear)
	fillCHW(o.input.GetData(), resized.Pix, o.model)

	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	return slices.Clone(o.output.GetData()), nil
}

// fillCHW writes NRGBA pixels into a planar tensor in the model's channel
// order, subtracting the mean and applying the scale.
func fillCHW(dst []float32, pix []uint8, n Network) {
	plane := n.InputWidth * n.InputHeight
	order := [3]int{2, 1, 0} // BGR
	if n.SwapRB {
		order = [3]int{0, 1, 2}
	}
	for i := 0; i < plane; i++ {
		px := pix[i*4 : i*4+4]
		for c, src := range order {
			dst[c*plane+i] = float32((float64(px[src]) - n.Mean[c]) * n.Scale)
		}
	}
}

func (o *onnxNet) Close() error {
	o.session.Destroy()
	o.input.Destroy()
	o.output.Destroy()
	return nil
}

// ONNXClassifier classifies with onnxruntime.
type ONNXClassifier struct {
	*onnxNet
}

func NewONNXClassifier(rt *Runtime, n Network) (*ONNXClassifier, error) {
	o, err := loadONNX(rt, n)
	if err != nil {
		return nil, err
	}
	return &ONNXClassifier{o}, nil
}

func (c *ONNXClassifier) Classify(img types.Image) (int, float32, error) {
	scores, err := c.forward(img)
	if err != nil {
		return 0, 0, err
	}
	return topClass(scores, c.model.Layout)
}

// ONNXDetector detects with onnxruntime.
type ONNXDetector struct {
	*onnxNet
	decoder
}

func NewONNXDetector(rt *Runtime, n Network, labels []string, threshold float64) (*ONNXDetector, error) {
	o, err := loadONNX(rt, n)
	if err != nil {
		return nil, err
	}
	return &ONNXDetector{onnxNet: o, decoder: decoder{net: n, labels: labels, threshold: float32(threshold)}}, nil
}

func (d *ONNXDetector) Detect(img types.Image) ([]types.Detection, error) {
	data, err := d.forward(img)
	if err != nil {
		return nil, err
	}
	return d.decode(data, d.shape, img.Width, img.Height)
}
