// Package config holds the resolved run configuration and its validation.
package config

import (
	"fmt"
	"math/big"
	"os"
	"slices"
	"strings"
	"time"
)

// Defaults mirror the capture settings of the camera the tool was built for.
const (
	DefaultWidth           = 720
	DefaultHeight          = 480
	DefaultCamera          = "0"
	DefaultDetectThreshold = 0.5
	DefaultFormat          = "jpg"
	DefaultSeparator       = "-"
	DefaultJPEGQuality     = 95
	DefaultModelDir        = "networks"
	DefaultCameraBackend   = "gst"
	DefaultBackend         = "dnn"

	// IntegratedCamera is the device id selecting the on-board (CSI) camera.
	IntegratedCamera = "0"
)

// CameraPeriod is the fixed native capture period of the camera (30 fps).
var CameraPeriod = big.NewRat(1, 30)

var (
	// FormatChoices is the fixed set of image formats the encoder can write.
	FormatChoices  = []string{"bmp", "jpg", "png", "tif"}
	CameraBackends = []string{"ffmpeg", "gocv", "gst"}
	Backends       = []string{"dnn", "onnx", "worker"}
)

// Config is the resolved configuration of one recording run.
type Config struct {
	BaseFilename    string
	Separator       string
	Camera          string
	CameraBackend   string
	Width           int
	Height          int
	Interval        *big.Rat
	Classify        string
	ClassifyArgs    []string
	Detect          string
	DetectArgs      []string
	DetectThreshold float64
	Format          string
	JPEGQuality     int
	Backend         string
	ModelDir        string
	OnnxRuntimeLib  string
	WorkerScript    string
	DatabaseURL     string
	MetricsAddr     string
	LogLevel        string
}

// Default returns a Config populated with the default values.
func Default() Config {
	return Config{
		Separator:       DefaultSeparator,
		Camera:          DefaultCamera,
		CameraBackend:   DefaultCameraBackend,
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		DetectThreshold: DefaultDetectThreshold,
		Format:          DefaultFormat,
		JPEGQuality:     DefaultJPEGQuality,
		Backend:         DefaultBackend,
		ModelDir:        DefaultModelDir,
		LogLevel:        "info",
	}
}

// Error reports an invalid configuration value. It is detected before any capture starts.
type Error struct {
	Field  string
	Value  any
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ParseInterval parses a capture interval in seconds given as an integer,
// a decimal or a fraction ("2", "0.5", "1/15"). An empty string means no interval.
func ParseInterval(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, &Error{Field: "interval", Value: s, Reason: "not an integer, decimal or fraction"}
	}
	return r, nil
}

// CheckInterval rejects intervals shorter than the camera capture period.
// The camera cannot deliver frames faster than that, so pacing below it is meaningless.
func CheckInterval(interval *big.Rat) error {
	if interval == nil {
		return nil
	}
	if interval.Cmp(CameraPeriod) < 0 {
		return &Error{
			Field:  "interval",
			Value:  interval.RatString(),
			Reason: "cannot be less than 1/30 of a second because the camera only captures at 30fps; intervals evenly divisible by it (1/15, 1/10, 1, 2) avoid jitter",
		}
	}
	return nil
}

// IntervalDuration converts an interval to a time.Duration (0 when unset).
func IntervalDuration(interval *big.Rat) time.Duration {
	if interval == nil {
		return 0
	}
	ns := new(big.Rat).Mul(interval, big.NewRat(int64(time.Second), 1))
	f, _ := ns.Float64()
	return time.Duration(f)
}

// Validate checks every value that can be checked before hardware is touched.
func (c *Config) Validate() error {
	if c.Width <= 0 {
		return &Error{Field: "width", Value: c.Width, Reason: "must be positive"}
	}
	if c.Height <= 0 {
		return &Error{Field: "height", Value: c.Height, Reason: "must be positive"}
	}
	if err := CheckInterval(c.Interval); err != nil {
		return err
	}
	if !slices.Contains(FormatChoices, c.Format) {
		return &Error{Field: "format", Value: c.Format, Reason: fmt.Sprintf("must be one of %s", strings.Join(FormatChoices, ", "))}
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return &Error{Field: "jpeg-quality", Value: c.JPEGQuality, Reason: "must be between 1 and 100"}
	}
	if !slices.Contains(CameraBackends, c.CameraBackend) {
		return &Error{Field: "camera-backend", Value: c.CameraBackend, Reason: fmt.Sprintf("must be one of %s", strings.Join(CameraBackends, ", "))}
	}
	if !slices.Contains(Backends, c.Backend) {
		return &Error{Field: "backend", Value: c.Backend, Reason: fmt.Sprintf("must be one of %s", strings.Join(Backends, ", "))}
	}
	if c.Backend == "worker" && (c.Classify != "" || c.Detect != "") && c.WorkerScript == "" {
		return &Error{Field: "worker-script", Value: `""`, Reason: "required by the worker backend"}
	}
	return nil
}

// EffectiveSeparator is empty when there is no base filename.
func (c *Config) EffectiveSeparator() string {
	if c.BaseFilename == "" {
		return ""
	}
	return c.Separator
}

// SidecarName is the JSON-lines metadata log name.
func (c *Config) SidecarName() string {
	return SidecarName(c.BaseFilename)
}

// NFOName is the run-config sidecar name.
func (c *Config) NFOName() string {
	if c.BaseFilename == "" {
		return "metadata.nfo"
	}
	return c.BaseFilename + ".nfo"
}

// ImagePath is the output path of frame fnum.
func (c *Config) ImagePath(fnum uint64) string {
	return ImagePath(c.BaseFilename, c.Separator, fnum, c.Format)
}

// SidecarName returns {base}.jsonl, or metadata.jsonl for an empty base.
func SidecarName(base string) string {
	if base == "" {
		return "metadata.jsonl"
	}
	return base + ".jsonl"
}

// ImagePath returns {base}{sep}{fnum}.{ext}; the separator collapses when base is empty.
func ImagePath(base, sep string, fnum uint64, ext string) string {
	if base == "" {
		sep = ""
	}
	return fmt.Sprintf("%s%s%d.%s", base, sep, fnum, ext)
}

// WriteNFO writes the run configuration as key=value lines.
// The file documents the run and is never read back.
func (c *Config) WriteNFO(path, runID string) error {
	interval := "None"
	if c.Interval != nil {
		interval = c.Interval.RatString()
	}
	lines := []string{
		"camera=" + c.Camera,
		"interval=" + interval,
		fmt.Sprintf("width=%d", c.Width),
		fmt.Sprintf("height=%d", c.Height),
		"classify=" + orNone(c.Classify),
		"detect=" + orNone(c.Detect),
		fmt.Sprintf("detect_threshold=%g", c.DetectThreshold),
		"format=" + c.Format,
		"camera_backend=" + c.CameraBackend,
		"backend=" + c.Backend,
		"run_id=" + runID,
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
