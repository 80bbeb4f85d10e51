package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/jetstreamer/internal/config"
	"github.com/andresmejia3/jetstreamer/internal/logging"
	"github.com/andresmejia3/jetstreamer/internal/pipeline"
	"github.com/andresmejia3/jetstreamer/internal/store"
	"github.com/andresmejia3/jetstreamer/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// DB is the optional database mirror shared by subcommands. It stays nil
	// unless --db or POSTGRES_HOST is given.
	DB *store.Store
	// Log is the root logger, built from --log-level.
	Log *slog.Logger

	dbURL    string
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "jetstreamer [flags] <base_filename>",
	Short: "Classify, detect, or simply save frames from a camera",
	Long: `Classify, detect, or simply save frames from a camera.

Press Ctrl+C or send SIGINT to stop.

examples:
  jetstreamer --classify googlenet outfilename
  jetstreamer --detect pednet outfilename
  jetstreamer --detect pednet --classify googlenet outfilename`,
	Version:       Version,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if Log, err = logging.New(logLevel, os.Stderr); err != nil {
			return &config.Error{Field: "log-level", Value: logLevel, Reason: err.Error()}
		}

		url := resolveDBURL(dbURL, os.Getenv)
		if url == "" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := recordConfig(args[0])
		if err != nil {
			return err
		}
		return runRecord(cmd.Context(), cfg, DB, Log)
	},
}

// resolveDBURL returns the --db value, or a URL built from the POSTGRES_*
// environment, or "" when neither is set.
func resolveDBURL(flag string, getenv func(string) string) string {
	if flag != "" {
		return flag
	}
	host := getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		getenv("POSTGRES_USER"), getenv("POSTGRES_PASSWORD"), host, port, getenv("POSTGRES_DB"))
}

// describe picks the headline of the error box.
func describe(err error) string {
	var cfgErr *config.Error
	var capErr *pipeline.CapabilityError
	var frameErr *pipeline.FrameError
	switch {
	case errors.As(err, &cfgErr):
		return "Invalid configuration"
	case errors.As(err, &capErr):
		return fmt.Sprintf("Failed to initialize %s", capErr.Capability)
	case errors.As(err, &frameErr):
		return fmt.Sprintf("Frame processing failed in %s", frameErr.Stage)
	default:
		return "Command failed"
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)

	if DB != nil {
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		// and we still need to send the "Close" command to the DB.
		DB.Close(context.Background())
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Println(" Caught interrupt. Quitting.")
	default:
		stop()
		utils.Die(describe(err), err, nil)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for mirroring frame records (default: built from POSTGRES_* when POSTGRES_HOST is set)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
