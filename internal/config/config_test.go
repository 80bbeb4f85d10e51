package config

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    *big.Rat
		wantErr bool
	}{
		{"", nil, false},
		{"2", big.NewRat(2, 1), false},
		{"0.5", big.NewRat(1, 2), false},
		{"1/15", big.NewRat(1, 15), false},
		{" 1/30 ", big.NewRat(1, 30), false},
		{"fast", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInterval(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("Expected nil interval, got %v", got)
				}
				return
			}
			if got.Cmp(tt.want) != 0 {
				t.Errorf("ParseInterval(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCheckInterval(t *testing.T) {
	tests := []struct {
		name    string
		r       *big.Rat
		wantErr bool
	}{
		{"unset", nil, false},
		{"camera period", big.NewRat(1, 30), false},
		{"slower", big.NewRat(1, 15), false},
		{"just below", big.NewRat(1, 31), true},
		{"zero", big.NewRat(0, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckInterval(tt.r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckInterval() error = %v, wantErr %v", err, tt.wantErr)
			}
			var cfgErr *Error
			if tt.wantErr && !errors.As(err, &cfgErr) {
				t.Errorf("Expected *Error, got %T", err)
			}
		})
	}
}

func TestIntervalDuration(t *testing.T) {
	if d := IntervalDuration(nil); d != 0 {
		t.Errorf("Expected 0 for nil interval, got %v", d)
	}
	if d := IntervalDuration(big.NewRat(1, 2)); d != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", d)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		field   string
		wantErr bool
	}{
		{name: "Defaults", mutate: func(c *Config) {}},
		{name: "Zero width", mutate: func(c *Config) { c.Width = 0 }, field: "width", wantErr: true},
		{name: "Negative height", mutate: func(c *Config) { c.Height = -1 }, field: "height", wantErr: true},
		{name: "Interval too short", mutate: func(c *Config) { c.Interval = big.NewRat(1, 60) }, field: "interval", wantErr: true},
		{name: "Unknown format", mutate: func(c *Config) { c.Format = "gif" }, field: "format", wantErr: true},
		{name: "PNG format", mutate: func(c *Config) { c.Format = "png" }},
		{name: "JPEG quality", mutate: func(c *Config) { c.JPEGQuality = 101 }, field: "jpeg-quality", wantErr: true},
		{name: "Camera backend", mutate: func(c *Config) { c.CameraBackend = "v4l" }, field: "camera-backend", wantErr: true},
		{name: "Backend", mutate: func(c *Config) { c.Backend = "tensorrt" }, field: "backend", wantErr: true},
		{
			name:    "Worker without script",
			mutate:  func(c *Config) { c.Backend = "worker"; c.Classify = "googlenet" },
			field:   "worker-script",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestNaming(t *testing.T) {
	tests := []struct {
		base, sep, ext string
		fnum           uint64
		wantImage      string
		wantSidecar    string
	}{
		{"run", "-", "jpg", 12, "run-12.jpg", "run.jsonl"},
		{"", "-", "png", 5, "5.png", "metadata.jsonl"},
		{"out/cam", "_", "bmp", 0, "out/cam_0.bmp", "out/cam.jsonl"},
	}

	for _, tt := range tests {
		t.Run(tt.wantImage, func(t *testing.T) {
			cfg := Default()
			cfg.BaseFilename = tt.base
			cfg.Separator = tt.sep
			cfg.Format = tt.ext
			if got := cfg.ImagePath(tt.fnum); got != tt.wantImage {
				t.Errorf("ImagePath() = %q, want %q", got, tt.wantImage)
			}
			if got := cfg.SidecarName(); got != tt.wantSidecar {
				t.Errorf("SidecarName() = %q, want %q", got, tt.wantSidecar)
			}
		})
	}
}

func TestWriteNFO(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.BaseFilename = filepath.Join(dir, "run")
	cfg.Interval = big.NewRat(1, 15)
	cfg.Detect = "pednet"

	path := cfg.NFOName()
	if err := cfg.WriteNFO(path, "abc"); err != nil {
		t.Fatalf("WriteNFO failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, line := range []string{
		"camera=0",
		"interval=1/15",
		"width=720",
		"height=480",
		"classify=None",
		"detect=pednet",
		"detect_threshold=0.5",
		"format=jpg",
		"run_id=abc",
	} {
		if !strings.Contains(got, line+"\n") {
			t.Errorf("Expected line %q in nfo:\n%s", line, got)
		}
	}
}
