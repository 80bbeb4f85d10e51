// Package worker runs inference in a Python subprocess.
//
// Requests go over stdin and responses come back on FD 3, both framed as
// [uint32 big-endian length][payload]. A request payload is one op byte
// ('C' classify, 'D' detect) followed by a JPEG; the response is JSON.
package worker

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andresmejia3/jetstreamer/internal/imgconv"
	"github.com/andresmejia3/jetstreamer/internal/types"
	"github.com/andresmejia3/jetstreamer/internal/utils" // Using the SafeCommand wrapper
)

const (
	OpClassify byte = 'C'
	OpDetect   byte = 'D'
)

// jpegQuality is the compression used for frames sent to the worker.
const jpegQuality = 90

// Error is a failure reported by, or caused by the death of, the worker process.
type Error struct {
	Msg    string
	Err    error
	stderr string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("python worker error: %s: %v", e.Msg, e.Err)
	}
	return "python worker error: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Logs returns what the worker printed to stderr before failing.
func (e *Error) Logs() string { return e.stderr }

// Options selects the script and the network the worker loads at startup.
type Options struct {
	Python    string // interpreter, default python3
	Script    string
	Role      string // "classify" or "detect"
	Network   string
	Args      []string
	Threshold float64
}

func (o Options) argv() []string {
	argv := []string{"-u", o.Script, "--role", o.Role, "--network", o.Network}
	if o.Role == "detect" {
		argv = append(argv, "--threshold", strconv.FormatFloat(o.Threshold, 'g', -1, 64))
	}
	if len(o.Args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, o.Args...)
	}
	return argv
}

type PythonWorker struct {
	Role     string
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	closed   bool
}

// NewPythonWorker starts the script with the network named in opts.
func NewPythonWorker(opts Options) (*PythonWorker, error) {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if _, err := os.Stat(opts.Script); err != nil {
		return nil, fmt.Errorf("worker script: %w", err)
	}

	py := utils.NewSafeCommand(opts.Python, opts.argv()...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("%s worker failed to start: %w", opts.Role, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		Role:     opts.Role,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one framed request and reads one framed response.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if w.closed {
		return nil, errors.New("python worker is closed")
	}
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, w.crashed("failed to send request", err)
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, w.crashed("failed to send request", err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, w.crashed("no response", err) // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, w.crashed("truncated response", err)
	}
	return respBody, nil
}

func (w *PythonWorker) crashed(msg string, err error) *Error {
	e := &Error{Msg: msg, Err: err}
	if w.Cmd != nil {
		e.stderr = w.Cmd.Stderr.String()
	}
	return e
}

func (w *PythonWorker) request(op byte, img types.Image) ([]byte, error) {
	jpeg, err := imgconv.EncodeJPEG(img, jpegQuality)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(jpeg)+1)
	payload = append(payload, op)
	payload = append(payload, jpeg...)

	resp, err := w.Communicate(payload)
	if err != nil {
		return nil, err
	}
	var errResp types.ErrorResult
	if json.Unmarshal(resp, &errResp) == nil && errResp.Error != "" {
		return nil, &Error{Msg: errResp.Error}
	}
	return resp, nil
}

// Classify implements pipeline.Classifier.
func (w *PythonWorker) Classify(img types.Image) (int, float32, error) {
	resp, err := w.request(OpClassify, img)
	if err != nil {
		return 0, 0, err
	}
	var res types.ClassResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return 0, 0, fmt.Errorf("failed to parse worker response: %w", err)
	}
	return res.ClassID, res.Confidence, nil
}

// Detect implements pipeline.Detector.
func (w *PythonWorker) Detect(img types.Image) ([]types.Detection, error) {
	resp, err := w.request(OpDetect, img)
	if err != nil {
		return nil, err
	}
	detections := []types.Detection{}
	if err := json.Unmarshal(resp, &detections); err != nil {
		return nil, fmt.Errorf("failed to parse worker response: %w", err)
	}
	return detections, nil
}

// Close ends the worker. Closing stdin is the worker's signal to exit.
func (w *PythonWorker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	if err := w.Cmd.Wait(); err != nil {
		return w.crashed("exited with error", err)
	}
	return nil
}
