package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	configLoader *mockConfigLoader
	tools        *mockToolResolver
	pipeline     *mockPipelineFactory
	server       *mockServerFactory
	stdout       *syncBuffer
	stderr       *syncBuffer
}

func newTestMocks() *testMocks {
	return &testMocks{
		configLoader: &mockConfigLoader{},
		tools:        &mockToolResolver{},
		pipeline:     &mockPipelineFactory{mockPipeline: &mockPipeline{}},
		server:       &mockServerFactory{},
		stdout:       &syncBuffer{},
		stderr:       &syncBuffer{},
	}
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

// testEnvOption configures testEnv.
type testEnvOption func(*Env, *testMocks)

// withStdin sets the stdin content.
func withStdin(s string) testEnvOption {
	return func(e *Env, _ *testMocks) { e.Stdin = strings.NewReader(s) }
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env and the mocks for assertions.
func testEnv(opts ...testEnvOption) (*Env, *testMocks) {
	mocks := newTestMocks()
	env := &Env{
		Stdin:           strings.NewReader(""),
		Stdout:          mocks.stdout,
		Stderr:          mocks.stderr,
		Now:             fixedTime(time.Date(2026, 1, 26, 14, 30, 52, 0, time.UTC)),
		Version:         "test",
		ConfigLoader:    mocks.configLoader,
		ToolResolver:    mocks.tools,
		PipelineFactory: mocks.pipeline,
		ServerFactory:   mocks.server,
	}
	for _, opt := range opts {
		opt(env, mocks)
	}
	return env, mocks
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fixedTime returns a function that always returns the given time.
func fixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// createTestAudioFile creates a temporary audio file for testing.
// Returns the file path. The file is automatically cleaned up after the test.
func createTestAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("fake audio content"), 0644); err != nil {
		t.Fatalf("failed to create test audio file: %v", err)
	}
	return path
}
