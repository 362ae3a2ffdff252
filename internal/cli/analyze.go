package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alnah/go-lipsync/internal/format"
	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/pipeline"
)

// AnalyzeCmd creates the analyze command.
// The env parameter provides injectable dependencies for testing.
func AnalyzeCmd(env *Env) *cobra.Command {
	var (
		output  string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Generate mouth cues for an audio file",
		Long: `Generate lip sync mouth cues for an audio file with Rhubarb Lip Sync.

The audio is converted to 16-bit mono PCM at 44.1 kHz, split into fixed
segments analyzed in parallel, and the cues are merged in time order.

Any format ffmpeg can decode is accepted. Use "-" to read audio from stdin.`,
		Example: `  lipsync analyze speech.mp3
  lipsync analyze speech.ogg -o cues.json
  lipsync analyze long.wav --window 20s -p 8
  cat speech.wav | lipsync analyze - --compact`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, env, args[0], output, compact)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&compact, "compact", false, "Write JSON on a single line")
	addPipelineFlags(cmd.Flags())

	return cmd
}

// runAnalyze runs the pipeline on one audio file.
// Validation order: input exists -> output free -> config -> tools
func runAnalyze(cmd *cobra.Command, env *Env, inputPath, output string, compact bool) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	if inputPath != "-" {
		if _, err := os.Stat(inputPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, inputPath)
			}
			return fmt.Errorf("cannot access input file: %w", err)
		}
	}
	if output != "" {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("output file already exists: %s: %w", output, ErrOutputExists)
		}
	}

	cfg, log, err := loadConfig(cmd, env)
	if err != nil {
		return err
	}
	tools, err := resolveTools(ctx, env, cfg, log)
	if err != nil {
		return err
	}

	data, err := readInput(env.Stdin, inputPath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyInput, inputPath)
	}

	// === PROCESSING ===

	p, err := env.PipelineFactory.NewPipeline(cfg, tools, log, metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		return err
	}

	name := filepath.Base(inputPath)
	if inputPath == "-" {
		name = "stdin"
	}
	fmt.Fprintf(env.Stderr, "Analyzing %s (%s)...\n", name, format.Size(int64(len(data))))
	start := env.Now()

	cues, err := p.Run(ctx, data)
	if err != nil {
		return err
	}

	if err := writeResult(env.Stdout, output, pipeline.Result{MouthCues: cues}, compact); err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "Done: %d mouth cues in %s\n", len(cues), format.Duration(env.Now().Sub(start)))
	if output != "" {
		fmt.Fprintf(env.Stderr, "Written to %s\n", output)
	}
	return nil
}
