package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-lipsync/internal/config"
	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/server"
)

// ServeCmd creates the serve command.
// The env parameter provides injectable dependencies for testing.
func ServeCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lip sync requests over HTTP",
		Long: `Serve lip sync requests over HTTP until interrupted.

Endpoints:
  POST /predictions  lip sync request, also accepted wrapped in {"input": {...}}
  GET  /health       liveness
  GET  /metrics      Prometheus metrics`,
		Example: `  lipsync serve
  lipsync serve --listen 127.0.0.1:8080 --log-format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, env)
		},
	}

	cmd.Flags().String(config.KeyListen, config.Defaults().Listen, "Listen address")
	addPipelineFlags(cmd.Flags())

	return cmd
}

// runServe builds the pipeline and serves it until the command context is
// canceled.
func runServe(cmd *cobra.Command, env *Env) error {
	ctx := cmd.Context()

	cfg, log, err := loadConfig(cmd, env)
	if err != nil {
		return err
	}
	if err := config.ValidScratchDir(cfg.ScratchDir); err != nil {
		return fmt.Errorf("scratch directory: %w", err)
	}
	tools, err := resolveTools(ctx, env, cfg, log)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	m := metrics.NewMetrics(reg)
	p, err := env.PipelineFactory.NewPipeline(cfg, tools, log, m)
	if err != nil {
		return err
	}

	srv := env.ServerFactory.NewServer(cfg.Listen, p,
		server.WithLogger(log),
		server.WithMetrics(m, reg),
		server.WithVersion(env.Version),
	)
	fmt.Fprintf(env.Stderr, "Serving on %s (Ctrl+C to stop)\n", cfg.Listen)
	return srv.ListenAndServe(ctx)
}
