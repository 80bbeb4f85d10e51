package inference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "googlenet.onnx"), "")
	touch(t, filepath.Join(dir, "pednet.onnx"), "")
	touch(t, filepath.Join(dir, "custom.onnx"), "")
	touch(t, filepath.Join(dir, "mine.labels"), "cat\ndog\n")

	tests := []struct {
		name    string
		network string
		kind    Kind
		args    []string
		wantErr string
		check   func(t *testing.T, n Network)
	}{
		{
			name: "Registry classifier", network: "googlenet", kind: Classification,
			check: func(t *testing.T, n Network) {
				if n.Model != filepath.Join(dir, "googlenet.onnx") || n.InputWidth != 224 {
					t.Errorf("Unexpected network %+v", n)
				}
			},
		},
		{name: "Wrong kind", network: "googlenet", kind: Detection, wantErr: "classify network"},
		{name: "Unknown", network: "lenet", kind: Classification, wantErr: "unknown network"},
		{name: "Missing model", network: "resnet-18", kind: Classification, wantErr: "model for resnet-18"},
		{
			name: "Overrides", network: "pednet", kind: Detection,
			args: []string{"--input-width=512", "--input-height", "256", "--labels=mine.labels", "--nms", "0.3"},
			check: func(t *testing.T, n Network) {
				if n.InputWidth != 512 || n.InputHeight != 256 || n.NMS != 0.3 {
					t.Errorf("Overrides not applied: %+v", n)
				}
				if n.Labels != filepath.Join(dir, "mine.labels") {
					t.Errorf("Expected labels in model dir, got %s", n.Labels)
				}
			},
		},
		{
			name: "Foreign flags ignored", network: "googlenet", kind: Classification,
			args: []string{"--input-blob=data", "--output-cvg", "prob", "--input-width=100"},
			check: func(t *testing.T, n Network) {
				if n.InputWidth != 100 {
					t.Errorf("Expected input width 100, got %d", n.InputWidth)
				}
			},
		},
		{name: "Missing explicit labels", network: "pednet", kind: Detection, args: []string{"--labels=nope.txt"}, wantErr: "labels for pednet"},
		{name: "Bad input size", network: "pednet", kind: Detection, args: []string{"--input-width=0"}, wantErr: "input size"},
		{name: "Bad number", network: "pednet", kind: Detection, args: []string{"--nms=high"}, wantErr: "arguments for pednet"},
		{
			name: "ONNX path", network: "custom.onnx", kind: Detection,
			check: func(t *testing.T, n Network) {
				if n.Layout != LayoutYOLOv8 || n.Kind != Detection {
					t.Errorf("Expected a YOLOv8 detector, got %+v", n)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Resolve(tt.network, tt.kind, dir, tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			tt.check(t, n)
		})
	}
}

func TestResolveDoesNotMutateRegistry(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "yolov8n.onnx"), "")
	if _, err := Resolve("yolov8n", Detection, dir, []string{"--input-width=320"}); err != nil {
		t.Fatal(err)
	}
	if Registry["yolov8n"].InputWidth != 640 {
		t.Error("Resolve changed the registry entry")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != len(Registry) {
		t.Fatalf("Expected %d names, got %d", len(Registry), len(names))
	}
	seenDetect := false
	for i, name := range names {
		kind := Registry[name].Kind
		if kind == Detection {
			seenDetect = true
		} else if seenDetect {
			t.Errorf("Classifier %s listed after detectors", name)
		}
		if i > 0 && Registry[names[i-1]].Kind == kind && names[i-1] > name {
			t.Errorf("Names not sorted: %s before %s", names[i-1], name)
		}
	}
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l.txt")
	touch(t, path, "background\nperson \n")
	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 2 || labels[1] != "person" {
		t.Errorf("Unexpected labels %q", labels)
	}
	if label(labels, 5) != "" || label(labels, -1) != "" {
		t.Error("Out of range ids must have no label")
	}

	missing, err := LoadLabels(filepath.Join(t.TempDir(), "none"))
	if err != nil || missing != nil {
		t.Errorf("Expected no labels and no error, got %v %v", missing, err)
	}
}
