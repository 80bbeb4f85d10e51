// Package inference provides the classification and detection back-ends.
//
// Networks are looked up by name in a registry and resolved to model files
// under a model directory. A path ending in .onnx is accepted as a network name.
package inference

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// Kind is what a network does.
type Kind int

const (
	Classification Kind = iota
	Detection
)

func (k Kind) String() string {
	if k == Detection {
		return "detect"
	}
	return "classify"
}

// Output layouts understood by the detection decoders.
const (
	LayoutSoftmax = "softmax" // [1, C] probabilities
	LayoutLogits  = "logits"  // [1, C] raw scores
	LayoutSSD     = "ssd"     // [1, 1, N, 7] image_id, label, confidence, x1, y1, x2, y2 (normalized)
	LayoutYOLOv8  = "yolov8"  // [1, 4+C, N] cx, cy, w, h, class scores (input pixels)
)

// Network describes a model and how to feed it.
type Network struct {
	Name        string
	Kind        Kind
	Model       string
	Labels      string
	InputWidth  int
	InputHeight int
	Scale       float64    // applied after mean subtraction
	Mean        [3]float64 // in the model's channel order
	SwapRB      bool       // model expects RGB
	Layout      string
	NMS         float64 // IoU threshold, YOLO layouts only
}

var (
	imagenetCaffe = Network{InputWidth: 224, InputHeight: 224, Scale: 1, Mean: [3]float64{104, 117, 123}, Layout: LayoutSoftmax}
	imagenetTorch = Network{InputWidth: 224, InputHeight: 224, Scale: 1 / 58.395, Mean: [3]float64{123.675, 116.28, 103.53}, SwapRB: true, Layout: LayoutLogits}
	ssd300        = Network{InputWidth: 300, InputHeight: 300, Scale: 1 / 127.5, Mean: [3]float64{127.5, 127.5, 127.5}, SwapRB: true, Layout: LayoutSSD}
	yolo640       = Network{InputWidth: 640, InputHeight: 640, Scale: 1.0 / 255, SwapRB: true, Layout: LayoutYOLOv8, NMS: 0.45}
)

func entry(name string, kind Kind, base Network) Network {
	base.Name = name
	base.Kind = kind
	base.Model = name + ".onnx"
	base.Labels = name + ".labels"
	return base
}

// Registry holds the built-in networks keyed by name.
var Registry = map[string]Network{
	"googlenet":        entry("googlenet", Classification, imagenetCaffe),
	"alexnet":          entry("alexnet", Classification, imagenetCaffe),
	"resnet-18":        entry("resnet-18", Classification, imagenetTorch),
	"resnet-50":        entry("resnet-50", Classification, imagenetTorch),
	"ssd-mobilenet-v2": entry("ssd-mobilenet-v2", Detection, ssd300),
	"ssd-inception-v2": entry("ssd-inception-v2", Detection, ssd300),
	"pednet":           entry("pednet", Detection, ssd300),
	"multiped":         entry("multiped", Detection, ssd300),
	"facenet":          entry("facenet", Detection, ssd300),
	"coco-dog":         entry("coco-dog", Detection, ssd300),
	"yolov8n":          entry("yolov8n", Detection, yolo640),
}

// Names returns the registry names sorted by kind, then name.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := Registry[names[i]], Registry[names[j]]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})
	return names
}

// Resolve finds the network called name and applies the passthrough args.
// Relative model and label paths are taken from modelDir. The model must exist;
// the labels file is optional unless given explicitly.
func Resolve(name string, kind Kind, modelDir string, args []string) (Network, error) {
	n, ok := Registry[name]
	switch {
	case ok:
		if n.Kind != kind {
			return Network{}, fmt.Errorf("%s is a %s network, not a %s network", name, n.Kind, kind)
		}
	case strings.HasSuffix(name, ".onnx"):
		base := imagenetTorch
		if kind == Detection {
			base = yolo640
		}
		n = base
		n.Name, n.Kind, n.Model = name, kind, name
		n.Labels = strings.TrimSuffix(name, ".onnx") + ".labels"
	default:
		return Network{}, fmt.Errorf("unknown network %q", name)
	}

	explicitLabels, err := n.applyArgs(args)
	if err != nil {
		return Network{}, err
	}

	n.Model = inDir(modelDir, n.Model)
	n.Labels = inDir(modelDir, n.Labels)
	if _, err := os.Stat(n.Model); err != nil {
		return Network{}, fmt.Errorf("model for %s: %w", name, err)
	}
	if explicitLabels {
		if _, err := os.Stat(n.Labels); err != nil {
			return Network{}, fmt.Errorf("labels for %s: %w", name, err)
		}
	}
	return n, nil
}

// applyArgs parses the passthrough arguments given after the network name.
// Flags meant for other back-ends are ignored.
func (n *Network) applyArgs(args []string) (explicitLabels bool, err error) {
	fs := pflag.NewFlagSet(n.Name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&n.Model, "model", n.Model, "model file")
	fs.StringVar(&n.Labels, "labels", n.Labels, "labels file, one class per line")
	fs.IntVar(&n.InputWidth, "input-width", n.InputWidth, "network input width")
	fs.IntVar(&n.InputHeight, "input-height", n.InputHeight, "network input height")
	fs.Float64Var(&n.NMS, "nms", n.NMS, "non-maximum suppression IoU threshold")

	if err := fs.Parse(knownArgs(fs, args)); err != nil {
		return false, fmt.Errorf("arguments for %s: %w", n.Name, err)
	}
	if n.InputWidth <= 0 || n.InputHeight <= 0 {
		return false, fmt.Errorf("arguments for %s: input size must be positive", n.Name)
	}
	return fs.Changed("labels"), nil
}

// knownArgs keeps the flags defined in fs, with their values, and drops the rest.
func knownArgs(fs *pflag.FlagSet, args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if fs.Lookup(name) == nil {
			continue
		}
		out = append(out, arg)
		if !hasValue && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}
	return out
}

func inDir(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	// Paths that already exist relative to the working directory win.
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(dir, path)
}

// LoadLabels reads one label per line. A missing file yields no labels.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		labels = append(labels, strings.TrimSpace(sc.Text()))
	}
	return labels, sc.Err()
}

func label(labels []string, id int) string {
	if id < 0 || id >= len(labels) {
		return ""
	}
	return labels[id]
}
