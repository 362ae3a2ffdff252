package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/alnah/go-lipsync/internal/audio"
	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/config"
	"github.com/alnah/go-lipsync/internal/cue"
	"github.com/alnah/go-lipsync/internal/ffmpeg"
	"github.com/alnah/go-lipsync/internal/lipsync"
	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/pipeline"
	"github.com/alnah/go-lipsync/internal/scratch"
	"github.com/alnah/go-lipsync/internal/server"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
type Env struct {
	// I/O and environment
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Now     func() time.Time
	Version string

	// Factories for domain objects
	ConfigLoader    ConfigLoader
	ToolResolver    ToolResolver
	PipelineFactory PipelineFactory
	ServerFactory   ServerFactory
}

// ConfigLoader loads the effective configuration for a command.
type ConfigLoader interface {
	Load(flags *pflag.FlagSet) (config.Config, error)
}

// ToolResolver locates external tools and reports their versions.
type ToolResolver interface {
	Resolve(tool command.Tool, override string) (string, error)
	Version(ctx context.Context, tool command.Tool, path string) (string, error)
	CheckFFmpeg(ctx context.Context, log logrus.FieldLogger, ffmpegPath string)
}

// Tools holds resolved tool paths.
type Tools struct {
	FFmpeg  string
	FFprobe string
	Rhubarb string
}

// Pipeline processes audio into mouth cues.
type Pipeline interface {
	Run(ctx context.Context, data []byte) ([]cue.MouthCue, error)
	Predict(ctx context.Context, req pipeline.Request) pipeline.Result
}

// PipelineFactory creates pipelines.
type PipelineFactory interface {
	NewPipeline(cfg config.Config, tools Tools, log logrus.FieldLogger, m *metrics.Metrics) (Pipeline, error)
}

// Server serves requests until its context is canceled.
type Server interface {
	ListenAndServe(ctx context.Context) error
}

// ServerFactory creates HTTP servers.
type ServerFactory interface {
	NewServer(addr string, p server.Predictor, opts ...server.Option) Server
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdin sets the stdin reader.
func WithStdin(r io.Reader) EnvOption {
	return func(e *Env) { e.Stdin = r }
}

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) { e.Now = fn }
}

// WithVersion sets the program version reported by the server.
func WithVersion(v string) EnvOption {
	return func(e *Env) { e.Version = v }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithToolResolver sets the tool resolver.
func WithToolResolver(r ToolResolver) EnvOption {
	return func(e *Env) { e.ToolResolver = r }
}

// WithPipelineFactory sets the pipeline factory.
func WithPipelineFactory(f PipelineFactory) EnvOption {
	return func(e *Env) { e.PipelineFactory = f }
}

// WithServerFactory sets the server factory.
func WithServerFactory(f ServerFactory) EnvOption {
	return func(e *Env) { e.ServerFactory = f }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Now:             time.Now,
		Version:         "dev",
		ConfigLoader:    &defaultConfigLoader{},
		ToolResolver:    newDefaultToolResolver(),
		PipelineFactory: &defaultPipelineFactory{},
		ServerFactory:   &defaultServerFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader implements ConfigLoader with viper.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load(flags *pflag.FlagSet) (config.Config, error) {
	v := config.NewViper()
	var file string
	if flags != nil {
		if err := config.BindFlags(v, flags); err != nil {
			return config.Config{}, err
		}
		if f := flags.Lookup(flagConfig); f != nil {
			file = f.Value.String()
		}
	}
	return config.Load(v, config.ExpandPath(file))
}

// defaultToolResolver implements ToolResolver with the command and ffmpeg
// packages.
type defaultToolResolver struct {
	resolver *command.Resolver
	runner   command.Runner
}

func newDefaultToolResolver() *defaultToolResolver {
	return &defaultToolResolver{
		resolver: command.NewResolver(),
		runner:   command.NewExecutor(command.WithTimeout(10 * time.Second)),
	}
}

func (r *defaultToolResolver) Resolve(tool command.Tool, override string) (string, error) {
	return r.resolver.Resolve(tool, override)
}

func (r *defaultToolResolver) Version(ctx context.Context, tool command.Tool, path string) (string, error) {
	return command.Version(ctx, r.runner, tool, path)
}

func (r *defaultToolResolver) CheckFFmpeg(ctx context.Context, log logrus.FieldLogger, ffmpegPath string) {
	ffmpeg.NewVersionChecker(
		ffmpeg.WithVersionRunner(r.runner),
		ffmpeg.WithVersionLogger(log),
	).Check(ctx, ffmpegPath)
}

// defaultPipelineFactory wires the production pipeline.
type defaultPipelineFactory struct{}

func (defaultPipelineFactory) NewPipeline(cfg config.Config, tools Tools, log logrus.FieldLogger, m *metrics.Metrics) (Pipeline, error) {
	runner := command.NewExecutor(command.WithTimeout(cfg.ToolTimeout))

	store, err := scratch.NewStore(cfg.ScratchDir, scratch.WithLogger(log))
	if err != nil {
		return nil, err
	}
	transcoder, err := ffmpeg.NewTranscoder(tools.FFmpeg, runner)
	if err != nil {
		return nil, err
	}
	prober, err := ffmpeg.NewProber(tools.FFprobe, runner)
	if err != nil {
		return nil, err
	}
	segmenter, err := audio.NewSegmenter(transcoder,
		audio.WithWindow(cfg.Window),
		audio.WithMinSegment(cfg.MinSegment))
	if err != nil {
		return nil, err
	}
	analyzer, err := newAnalyzer(cfg, tools.Rhubarb, runner)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Components{
		Store:      store,
		Transcoder: transcoder,
		Prober:     prober,
		Segmenter:  segmenter,
		Analyzer:   analyzer,
	},
		pipeline.WithParallel(cfg.Parallel),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
	)
}

// newAnalyzer creates the rhubarb analyzer with the configured recognizer
// and extended shapes.
func newAnalyzer(cfg config.Config, rhubarbPath string, runner command.Runner) (*lipsync.Rhubarb, error) {
	return lipsync.NewRhubarb(rhubarbPath, runner,
		lipsync.WithRecognizer(cfg.Recognizer),
		lipsync.WithExtendedShapes(cfg.ExtendedShapes))
}

// defaultServerFactory creates server.Server instances.
type defaultServerFactory struct{}

func (defaultServerFactory) NewServer(addr string, p server.Predictor, opts ...server.Option) Server {
	return server.New(addr, p, opts...)
}

// Compile-time interface verification.
var (
	_ ConfigLoader    = (*defaultConfigLoader)(nil)
	_ ToolResolver    = (*defaultToolResolver)(nil)
	_ PipelineFactory = (*defaultPipelineFactory)(nil)
	_ ServerFactory   = (*defaultServerFactory)(nil)
	_ Pipeline        = (*pipeline.Pipeline)(nil)
)
