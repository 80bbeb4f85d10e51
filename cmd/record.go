package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/jetstreamer/internal/capture"
	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/encoder"
	"github.com/andresmejia3/jetstreamer/internal/inference"
	"github.com/andresmejia3/jetstreamer/internal/monitor"
	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/andresmejia3/jetstreamer/internal/store"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

var (
	recordOpts   = config.Default()
	intervalFlag string
	showProgress bool
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&recordOpts.Camera, "camera", config.DefaultCamera, "v4l2 device (eg. /dev/video0) or '0' for CSI camera")
	f.StringVar(&recordOpts.CameraBackend, "camera-backend", config.DefaultCameraBackend, "camera back-end: "+strings.Join(config.CameraBackends, ", "))
	f.IntVar(&recordOpts.Width, "width", config.DefaultWidth, "camera capture width")
	f.IntVar(&recordOpts.Height, "height", config.DefaultHeight, "camera capture height")
	f.StringVar(&intervalFlag, "interval", "", "interval between captures in seconds as float, fraction, or integer. Default is to capture as fast as the camera will allow (30fps) and the pipeline can process")
	f.StringVar(&recordOpts.Classify, "classify", "", "classification network to use")
	f.StringArrayVar(&recordOpts.ClassifyArgs, "classify-arg", nil, "argument passed to the classification network (repeatable)")
	f.StringVar(&recordOpts.Detect, "detect", "", "detection network to use")
	f.StringArrayVar(&recordOpts.DetectArgs, "detect-arg", nil, "argument passed to the detection network (repeatable)")
	f.Float64Var(&recordOpts.DetectThreshold, "detect-threshold", config.DefaultDetectThreshold, "detection confidence threshold")
	f.StringVar(&recordOpts.Format, "format", config.DefaultFormat, "format to save image sequence in (jpg is probably fastest): "+strings.Join(config.FormatChoices, ", "))
	f.IntVar(&recordOpts.JPEGQuality, "jpeg-quality", config.DefaultJPEGQuality, "jpg encoding quality (1-100)")
	f.StringVar(&recordOpts.Separator, "separator", config.DefaultSeparator, "separator between base filename and frame number")
	f.StringVar(&recordOpts.Backend, "backend", config.DefaultBackend, "inference back-end: "+strings.Join(config.Backends, ", "))
	f.StringVar(&recordOpts.ModelDir, "model-dir", config.DefaultModelDir, "directory holding network models and labels")
	f.StringVar(&recordOpts.OnnxRuntimeLib, "onnxruntime-lib", "", "path to the onnxruntime shared library (onnx back-end)")
	f.StringVar(&recordOpts.WorkerScript, "worker-script", "", "python inference script (worker back-end)")
	f.StringVar(&recordOpts.MetricsAddr, "metrics-addr", "", "serve run metrics over HTTP on this address (eg. :9090)")
	f.BoolVar(&showProgress, "progress", true, "show a frame counter on stderr")
}

// recordConfig resolves the flag values into a run configuration.
func recordConfig(baseFilename string) (config.Config, error) {
	cfg := recordOpts
	cfg.BaseFilename = baseFilename
	cfg.LogLevel = logLevel
	cfg.DatabaseURL = resolveDBURL(dbURL, os.Getenv)

	interval, err := config.ParseInterval(intervalFlag)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Interval = interval
	return cfg, cfg.Validate()
}

// runConfig is the configuration stored with a run in the database.
func runConfig(cfg config.Config) json.RawMessage {
	var interval *string
	if cfg.Interval != nil {
		s := cfg.Interval.RatString()
		interval = &s
	}
	b, _ := json.Marshal(map[string]any{
		"camera":           cfg.Camera,
		"camera_backend":   cfg.CameraBackend,
		"width":            cfg.Width,
		"height":           cfg.Height,
		"interval":         interval,
		"classify":         cfg.Classify,
		"detect":           cfg.Detect,
		"detect_threshold": cfg.DetectThreshold,
		"format":           cfg.Format,
		"backend":          cfg.Backend,
	})
	return b
}

// runRecord records frames until the camera runs out or ctx is cancelled.
func runRecord(ctx context.Context, cfg config.Config, db *store.Store, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	log = log.With("run_id", runID)

	if err := cfg.WriteNFO(cfg.NFOName(), runID); err != nil {
		return fmt.Errorf("failed to write run config: %w", err)
	}

	camera, err := capture.New(cfg.CameraBackend)
	if err != nil {
		return err
	}
	newClassifier, newDetector, backend, err := inference.NewFactories(cfg)
	if err != nil {
		return err
	}
	// Runs after the chain is closed by pipeline.Run.
	defer backend.Close()

	stats := &pipeline.Stats{}
	caps := pipeline.Capabilities{
		Camera:        camera,
		NewClassifier: newClassifier,
		NewDetector:   newDetector,
		Encoder:       encoder.New(cfg.JPEGQuality),
		Stats:         stats,
	}

	if db != nil {
		run := store.Run{ID: runID, BaseFilename: cfg.BaseFilename, StartedAt: time.Now(), Config: runConfig(cfg)}
		if err := db.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to register run: %w", err)
		}
		caps.Store = db.Recorder(runID)
	}

	if cfg.MetricsAddr != "" {
		mon := monitor.New(cfg.MetricsAddr, runID, stats, log.With("component", "monitor"))
		if err := mon.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			mon.Shutdown(shutdownCtx)
		}()
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("📷 Recording"),
			progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
			progressbar.OptionShowCount(),
		)
		caps.Progress = bar
	}

	fmt.Fprintf(os.Stderr, "📼 Run ID: %s\n", runID[:8])
	summary, err := pipeline.Run(ctx, cfg, caps, log)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Recording complete. Wrote %d frames, dropped %d.\n", summary.Written, summary.Dropped)
	return nil
}
