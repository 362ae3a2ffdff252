// Package interrupt turns SIGINT and SIGTERM into a two-stage shutdown.
//
// The first signal cancels the handler's context: runs in flight stop at
// their next tool boundary and remove their scratch files, and the HTTP
// server drains. A second signal within the force window exits immediately.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ExitInterrupt is the exit code for interrupt (130 = 128 + SIGINT).
const ExitInterrupt = 130

// DefaultForceWindow is how long a second signal forces exit.
const DefaultForceWindow = 5 * time.Second

const (
	stoppingMessage = "\nStopping, removing scratch files (press Ctrl+C again to force)..."
	forcedMessage   = "\nForced exit, scratch files may remain."
)

// Handler cancels a context on the first signal and forces exit on the second.
type Handler struct {
	mu          sync.Mutex
	firstSignal time.Time
	interrupted bool
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}

	window time.Duration
	exit   func(int)
	now    func() time.Time
	stderr io.Writer
}

// Options holds injectable dependencies for testing.
type Options struct {
	SigCh       <-chan os.Signal
	ForceWindow time.Duration
	ExitFunc    func(int)
	NowFunc     func() time.Time
	// Stderr must be safe for concurrent writes.
	Stderr io.Writer
}

// NewHandler creates a handler listening for SIGINT and SIGTERM.
// The returned context is canceled on the first signal.
func NewHandler(parent context.Context) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return NewHandlerWithOptions(parent, Options{SigCh: sigCh})
}

// NewHandlerWithOptions creates a handler with injectable dependencies.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancel: cancel,
		done:   make(chan struct{}),
		window: opts.ForceWindow,
		exit:   opts.ExitFunc,
		now:    opts.NowFunc,
		stderr: opts.Stderr,
	}
	if h.window <= 0 {
		h.window = DefaultForceWindow
	}
	if h.exit == nil {
		h.exit = os.Exit
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}
	return h, ctx
}

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}
			if h.handle() {
				return
			}
		}
	}
}

// handle processes one signal and reports whether listening should stop.
func (h *Handler) handle() bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return true
	}
	now := h.now()

	if !h.interrupted {
		h.interrupted = true
		h.firstSignal = now
		h.mu.Unlock()
		fmt.Fprintln(h.stderr, stoppingMessage)
		h.cancel()
		return false
	}

	// A late second signal restarts the window.
	if now.Sub(h.firstSignal) > h.window {
		h.firstSignal = now
		h.mu.Unlock()
		fmt.Fprintln(h.stderr, stoppingMessage)
		return false
	}
	h.mu.Unlock()

	fmt.Fprintln(h.stderr, forcedMessage)
	h.exit(ExitInterrupt)
	return true
}

// Interrupted reports whether at least one signal was received.
func (h *Handler) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Stop releases the handler and restores default signal behavior.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.done)
	h.cancel()
}
