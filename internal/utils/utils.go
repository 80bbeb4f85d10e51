package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg and
// Python logs) so a subprocess that dies still leaves its reason behind.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// RequireBinary fails when name cannot be found in PATH.
func RequireBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return nil
}

// --- 2. Error Reporting ---

// Logs is implemented by errors that carry subprocess output worth showing.
type Logs interface {
	Logs() string
}

// ShowError prints the error box used for every fatal error of the CLI.
// Subprocess logs are dumped when s is non-nil or err carries them.
func ShowError(w io.Writer, context string, err error, s *SafeCommand) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 JETSTREAMER ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}

	logs := ""
	var carrier Logs
	if s != nil {
		logs = s.Stderr.String()
	} else if errors.As(err, &carrier) {
		logs = carrier.Logs()
	}
	if logs != "" {
		fmt.Fprintf(w, "\nSUBPROCESS LOGS:\n%s\n", logs)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// Die prints the error box to stderr and exits with status 1.
func Die(context string, err error, s *SafeCommand) {
	ShowError(os.Stderr, context, err, s)
	os.Exit(1)
}
