package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single external tool invocation.
const DefaultTimeout = 2 * time.Minute

// waitDelay is how long Run waits for a killed process to release its pipes.
const waitDelay = 2 * time.Second

// Result holds the captured outcome of one external command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Elapsed  time.Duration
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Diagnostic returns the trimmed stderr text, falling back to stdout.
// Most media tools write their diagnostics to stderr.
func (r Result) Diagnostic() string {
	if s := strings.TrimSpace(string(r.Stderr)); s != "" {
		return s
	}
	return strings.TrimSpace(string(r.Stdout))
}

// Runner executes external commands.
// A non-zero exit status is reported in Result.ExitCode, not as an error.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (Result, error)
}

// Compile-time interface verification.
var _ Runner = (*Executor)(nil)

// ---------------------------------------------------------------------------
// Executor - testable command execution with dependency injection
// ---------------------------------------------------------------------------

// runFn is the function type for running a command and capturing its result.
type runFn func(ctx context.Context, name string, args []string) (Result, error)

// Executor runs external commands with a per-invocation timeout.
type Executor struct {
	timeout time.Duration
	run     runFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the per-invocation timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithRunFunc sets a custom run function (for testing).
func WithRunFunc(fn runFn) ExecutorOption {
	return func(e *Executor) { e.run = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		timeout: DefaultTimeout,
		run:     defaultRun,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured per-invocation timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run executes name with args and captures stdout, stderr and exit status.
// It returns an error only when the process could not be started, exceeded
// the timeout (ErrTimeout), or ctx was canceled.
func (e *Executor) Run(ctx context.Context, name string, args []string) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.run(ctx, name, args)
}

// defaultRun is the production implementation.
func defaultRun(ctx context.Context, name string, args []string) (Result, error) {
	// #nosec G204 -- name and args are built by this program, not taken from requests
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Elapsed: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	// The context is checked first: a killed process also reports an ExitError.
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %s after %v", ErrTimeout, name, res.Elapsed.Round(time.Millisecond))
		}
		return res, fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("%w: %s: %v", ErrStart, name, err)
}
