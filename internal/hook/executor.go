package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a hook run when neither the executor nor the
// manifest sets one.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when a hook outlives its timeout.
var ErrTimeout = errors.New("hook execution timeout")

// Executor handles the execution of hooks with timeout support.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the given default timeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Execute runs a hook with the given request and returns the response.
// It marshals the request to JSON, sends it on stdin, and parses stdout as a
// Response. A manifest timeout overrides the executor default.
func (e *Executor) Execute(ctx context.Context, h *Hook, req *Request) (*Response, error) {
	timeout := e.timeout
	if h.Manifest.TimeoutMs > 0 {
		timeout = time.Duration(h.Manifest.TimeoutMs) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.Executable)
	cmd.Dir = h.Path

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("hook execution failed: %w, stderr: %s", err, s)
		}
		return nil, fmt.Errorf("hook execution failed: %w", err)
	}

	var response Response
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, stdout.String())
	}

	return &response, nil
}
