package interrupt_test

// Notes:
// - Signals are injected through Options.SigCh; no real signal is sent
// - The clock is injected to control the force window deterministically

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/alnah/go-lipsync/internal/interrupt"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	sigCh  chan os.Signal
	exits  chan int
	clock  *fakeClock
	stderr *syncBuffer
	h      *interrupt.Handler
	ctx    context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hs := &harness{
		sigCh:  make(chan os.Signal, 4),
		exits:  make(chan int, 1),
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		stderr: &syncBuffer{},
	}
	hs.h, hs.ctx = interrupt.NewHandlerWithOptions(context.Background(), interrupt.Options{
		SigCh:       hs.sigCh,
		ForceWindow: 2 * time.Second,
		ExitFunc:    func(code int) { hs.exits <- code },
		NowFunc:     hs.clock.Now,
		Stderr:      hs.stderr,
	})
	t.Cleanup(hs.h.Stop)
	return hs
}

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after signal")
	}
}

func TestNewHandler(t *testing.T) {
	t.Parallel()

	h, ctx := interrupt.NewHandler(context.Background())
	if h == nil || ctx == nil {
		t.Fatal("NewHandler() returned nil")
	}
	h.Stop()
	h.Stop()
	if ctx.Err() == nil {
		t.Error("context not canceled by Stop")
	}
}

func TestHandler_FirstSignalCancels(t *testing.T) {
	t.Parallel()

	hs := newHarness(t)
	if hs.h.Interrupted() {
		t.Fatal("Interrupted() = true before any signal")
	}

	hs.sigCh <- syscall.SIGINT
	waitDone(t, hs.ctx)

	if !hs.h.Interrupted() {
		t.Error("Interrupted() = false after signal")
	}
	if !strings.Contains(hs.stderr.String(), "Stopping") {
		t.Errorf("stderr = %q, want stopping notice", hs.stderr.String())
	}
	select {
	case code := <-hs.exits:
		t.Errorf("exit(%d) called on first signal", code)
	default:
	}
}

func TestHandler_SecondSignalForcesExit(t *testing.T) {
	t.Parallel()

	hs := newHarness(t)
	hs.sigCh <- syscall.SIGTERM
	waitDone(t, hs.ctx)

	hs.clock.Advance(time.Second)
	hs.sigCh <- syscall.SIGINT

	select {
	case code := <-hs.exits:
		if code != interrupt.ExitInterrupt {
			t.Errorf("exit code = %d, want %d", code, interrupt.ExitInterrupt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force exit")
	}
	if !strings.Contains(hs.stderr.String(), "Forced exit") {
		t.Errorf("stderr = %q, want forced exit notice", hs.stderr.String())
	}
}

func TestHandler_LateSecondSignalRestartsWindow(t *testing.T) {
	t.Parallel()

	hs := newHarness(t)
	hs.sigCh <- syscall.SIGINT
	waitDone(t, hs.ctx)

	hs.clock.Advance(3 * time.Second)
	hs.sigCh <- syscall.SIGINT

	hs.clock.Advance(time.Second)
	hs.sigCh <- syscall.SIGINT

	select {
	case <-hs.exits:
	case <-time.After(2 * time.Second):
		t.Fatal("third signal within restarted window did not force exit")
	}
	if got := strings.Count(hs.stderr.String(), "Stopping"); got != 2 {
		t.Errorf("stopping notices = %d, want 2", got)
	}
}

func TestHandler_ClosedChannel(t *testing.T) {
	t.Parallel()

	sigCh := make(chan os.Signal)
	h, ctx := interrupt.NewHandlerWithOptions(context.Background(), interrupt.Options{
		SigCh:  sigCh,
		Stderr: &syncBuffer{},
	})
	close(sigCh)
	h.Stop()
	if h.Interrupted() {
		t.Error("Interrupted() = true without signal")
	}
	if ctx.Err() == nil {
		t.Error("context not canceled by Stop")
	}
}
