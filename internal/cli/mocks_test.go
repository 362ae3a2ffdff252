package cli

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/config"
	"github.com/alnah/go-lipsync/internal/cue"
	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/pipeline"
	"github.com/alnah/go-lipsync/internal/server"
)

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func(flags *pflag.FlagSet) (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load(flags *pflag.FlagSet) (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(flags)
	}
	cfg := config.Defaults()
	cfg.LogLevel = "error"
	return cfg, nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock ToolResolver
// ---------------------------------------------------------------------------

type mockToolResolver struct {
	ResolveFunc func(tool command.Tool, override string) (string, error)
	VersionFunc func(ctx context.Context, tool command.Tool, path string) (string, error)

	mu            sync.Mutex
	resolveCalls  int
	ffmpegChecked string
}

func (m *mockToolResolver) Resolve(tool command.Tool, override string) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(tool, override)
	}
	if override != "" {
		return override, nil
	}
	return "/usr/bin/" + tool.Name, nil
}

func (m *mockToolResolver) Version(ctx context.Context, tool command.Tool, path string) (string, error) {
	if m.VersionFunc != nil {
		return m.VersionFunc(ctx, tool, path)
	}
	return tool.Name + " version 1.0", nil
}

func (m *mockToolResolver) CheckFFmpeg(ctx context.Context, log logrus.FieldLogger, ffmpegPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ffmpegChecked = ffmpegPath
}

func (m *mockToolResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

func (m *mockToolResolver) FFmpegChecked() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ffmpegChecked
}

// ---------------------------------------------------------------------------
// Mock PipelineFactory + Pipeline
// ---------------------------------------------------------------------------

type mockPipeline struct {
	RunFunc     func(ctx context.Context, data []byte) ([]cue.MouthCue, error)
	PredictFunc func(ctx context.Context, req pipeline.Request) pipeline.Result

	mu       sync.Mutex
	runData  [][]byte
	requests []pipeline.Request
}

func (m *mockPipeline) Run(ctx context.Context, data []byte) ([]cue.MouthCue, error) {
	m.mu.Lock()
	m.runData = append(m.runData, data)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, data)
	}
	return []cue.MouthCue{
		{Start: 0, End: 0.2, Value: cue.ShapeX},
		{Start: 0.2, End: 0.5, Value: cue.ShapeB},
	}, nil
}

func (m *mockPipeline) Predict(ctx context.Context, req pipeline.Request) pipeline.Result {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, req)
	}
	return pipeline.Result{MouthCues: []cue.MouthCue{{Start: 0, End: 0.4, Value: cue.ShapeA}}}
}

func (m *mockPipeline) RunData() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runData
}

func (m *mockPipeline) Requests() []pipeline.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

type mockPipelineFactory struct {
	NewPipelineFunc func(cfg config.Config, tools Tools) (Pipeline, error)
	mockPipeline    *mockPipeline

	mu      sync.Mutex
	calls   int
	tools   Tools
	metrics *metrics.Metrics
}

func (m *mockPipelineFactory) NewPipeline(cfg config.Config, tools Tools, log logrus.FieldLogger, mt *metrics.Metrics) (Pipeline, error) {
	m.mu.Lock()
	m.calls++
	m.tools = tools
	m.metrics = mt
	m.mu.Unlock()

	if m.NewPipelineFunc != nil {
		return m.NewPipelineFunc(cfg, tools)
	}
	if m.mockPipeline == nil {
		m.mockPipeline = &mockPipeline{}
	}
	return m.mockPipeline, nil
}

func (m *mockPipelineFactory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockPipelineFactory) Tools() Tools {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tools
}

// ---------------------------------------------------------------------------
// Mock ServerFactory + Server
// ---------------------------------------------------------------------------

type mockServer struct {
	ListenAndServeFunc func(ctx context.Context) error
}

func (m *mockServer) ListenAndServe(ctx context.Context) error {
	if m.ListenAndServeFunc != nil {
		return m.ListenAndServeFunc(ctx)
	}
	<-ctx.Done()
	return nil
}

type mockServerFactory struct {
	mockServer *mockServer

	mu        sync.Mutex
	addr      string
	predictor server.Predictor
	opts      int
}

func (m *mockServerFactory) NewServer(addr string, p server.Predictor, opts ...server.Option) Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addr = addr
	m.predictor = p
	m.opts = len(opts)
	if m.mockServer == nil {
		m.mockServer = &mockServer{}
	}
	return m.mockServer
}

func (m *mockServerFactory) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *mockServerFactory) Predictor() server.Predictor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictor
}

// Compile-time interface verification.
var (
	_ ConfigLoader    = (*mockConfigLoader)(nil)
	_ ToolResolver    = (*mockToolResolver)(nil)
	_ Pipeline        = (*mockPipeline)(nil)
	_ PipelineFactory = (*mockPipelineFactory)(nil)
	_ Server          = (*mockServer)(nil)
	_ ServerFactory   = (*mockServerFactory)(nil)
)
