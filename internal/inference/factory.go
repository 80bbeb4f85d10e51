package inference

import (
	"fmt"
	"io"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/andresmejia3/jetstreamer/internal/worker"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewFactories returns the classifier and detector constructors of the
// back-end named by cfg.Backend. The closer releases state shared by every
// network of the back-end and must be called after the networks are closed.
func NewFactories(cfg config.Config) (pipeline.ClassifierFactory, pipeline.DetectorFactory, io.Closer, error) {
	switch cfg.Backend {
	case "dnn":
		classify := func(network string, args ...string) (pipeline.Classifier, error) {
			n, err := Resolve(network, Classification, cfg.ModelDir, args)
			if err != nil {
				return nil, err
			}
			c, err := NewDNNClassifier(n)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		detect := func(network string, args []string, threshold float64) (pipeline.Detector, error) {
			n, labels, err := resolveDetector(network, cfg.ModelDir, args)
			if err != nil {
				return nil, err
			}
			d, err := NewDNNDetector(n, labels, threshold)
			if err != nil {
				return nil, err
			}
			return d, nil
		}
		return classify, detect, nopCloser{}, nil

	case "onnx":
		rt := NewRuntime(cfg.OnnxRuntimeLib)
		classify := func(network string, args ...string) (pipeline.Classifier, error) {
			n, err := Resolve(network, Classification, cfg.ModelDir, args)
			if err != nil {
				return nil, err
			}
			c, err := NewONNXClassifier(rt, n)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		detect := func(network string, args []string, threshold float64) (pipeline.Detector, error) {
			n, labels, err := resolveDetector(network, cfg.ModelDir, args)
			if err != nil {
				return nil, err
			}
			d, err := NewONNXDetector(rt, n, labels, threshold)
			if err != nil {
				return nil, err
			}
			return d, nil
		}
		return classify, detect, rt, nil

	case "worker":
		classify := func(network string, args ...string) (pipeline.Classifier, error) {
			w, err := worker.NewPythonWorker(worker.Options{
				Script:  cfg.WorkerScript,
				Role:    "classify",
				Network: network,
				Args:    args,
			})
			if err != nil {
				return nil, err
			}
			return w, nil
		}
		detect := func(network string, args []string, threshold float64) (pipeline.Detector, error) {
			w, err := worker.NewPythonWorker(worker.Options{
				Script:    cfg.WorkerScript,
				Role:      "detect",
				Network:   network,
				Args:      args,
				Threshold: threshold,
			})
			if err != nil {
				return nil, err
			}
			return w, nil
		}
		return classify, detect, nopCloser{}, nil

	default:
		return nil, nil, nil, &config.Error{Field: "backend", Value: cfg.Backend, Reason: "unknown inference back-end"}
	}
}

func resolveDetector(network, modelDir string, args []string) (Network, []string, error) {
	n, err := Resolve(network, Detection, modelDir, args)
	if err != nil {
		return Network{}, nil, err
	}
	labels, err := LoadLabels(n.Labels)
	if err != nil {
		return Network{}, nil, fmt.Errorf("labels for %s: %w", network, err)
	}
	return n, labels, nil
}
