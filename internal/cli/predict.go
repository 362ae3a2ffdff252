package cli

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/pipeline"
)

// PredictCmd creates the predict command.
// The env parameter provides injectable dependencies for testing.
func PredictCmd(env *Env) *cobra.Command {
	var (
		input   string
		output  string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Answer a JSON lip sync request",
		Long: `Answer a JSON request of the form {"audioData": "<base64>", "wakeUp": false}.

The request is read from stdin, or from --input. The response is always a JSON
object with a "mouthCues" array; failures, malformed requests included, are
reported in its "error" field.
A wake-up request returns a readiness payload without processing audio.`,
		Example: `  echo '{"wakeUp": true}' | lipsync predict
  jq -n --arg a "$(base64 -w0 speech.mp3)" '{audioData: $a}' | lipsync predict
  lipsync predict -i request.json -o response.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, env, input, output, compact)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Request file (default: stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Response file (default: stdout)")
	cmd.Flags().BoolVar(&compact, "compact", false, "Write JSON on a single line")
	addPipelineFlags(cmd.Flags())

	return cmd
}

// runPredict answers one request. Requests that need no processing are
// answered before tools are resolved.
func runPredict(cmd *cobra.Command, env *Env, input, output string, compact bool) error {
	ctx := cmd.Context()

	body, err := readInput(env.Stdin, input)
	if err != nil {
		return err
	}
	req, err := pipeline.ParseRequest(body)
	if err != nil {
		// Callers parse stdout, so a malformed request still gets a response.
		if werr := writeResult(env.Stdout, output, pipeline.ErrorResult(err.Error()), compact); werr != nil {
			return errors.Join(err, werr)
		}
		return err
	}

	cfg, log, err := loadConfig(cmd, env)
	if err != nil {
		return err
	}

	if res, ok := pipeline.Preflight(req); ok {
		return writeResult(env.Stdout, output, res, compact)
	}

	tools, err := resolveTools(ctx, env, cfg, log)
	if err != nil {
		return err
	}
	p, err := env.PipelineFactory.NewPipeline(cfg, tools, log, metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		return err
	}

	res := p.Predict(ctx, req)
	if err := writeResult(env.Stdout, output, res, compact); err != nil {
		return err
	}
	if res.Failed() {
		fmt.Fprintf(env.Stderr, "Prediction failed: %s\n", res.Error)
	}
	return nil
}
