package utils

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type workerCrash struct{ logs string }

func (e *workerCrash) Error() string { return "worker exited" }
func (e *workerCrash) Logs() string  { return e.logs }

func TestShowError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		cmd      *SafeCommand
		contains []string
		absent   string
	}{
		{
			name:     "Plain error",
			err:      errors.New("disk full"),
			contains: []string{"JETSTREAMER ERROR: Recording failed", "DETAILS: disk full"},
			absent:   "SUBPROCESS LOGS",
		},
		{
			name: "Command logs",
			err:  errors.New("exit status 1"),
			cmd: func() *SafeCommand {
				c := NewSafeCommand("true")
				c.Stderr.WriteString("Traceback: boom")
				return c
			}(),
			contains: []string{"SUBPROCESS LOGS", "Traceback: boom"},
		},
		{
			name:     "Error carrying logs",
			err:      &workerCrash{logs: "ImportError: cv2"},
			contains: []string{"DETAILS: worker exited", "ImportError: cv2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ShowError(&buf, "Recording failed", tt.err, tt.cmd)
			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("Expected %q in:\n%s", want, out)
				}
			}
			if tt.absent != "" && strings.Contains(out, tt.absent) {
				t.Errorf("Did not expect %q in:\n%s", tt.absent, out)
			}
		})
	}
}

func TestRequireBinary(t *testing.T) {
	if err := RequireBinary("definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("Expected an error for a missing binary")
	}
}

func TestNewSafeCommandCapturesStderr(t *testing.T) {
	cmd := NewSafeCommand("sh", "-c", "echo oops >&2; exit 3")
	if err := cmd.Run(); err == nil {
		t.Fatal("Expected a non-zero exit")
	}
	if got := strings.TrimSpace(cmd.Stderr.String()); got != "oops" {
		t.Errorf("Expected captured stderr %q, got %q", "oops", got)
	}
}
