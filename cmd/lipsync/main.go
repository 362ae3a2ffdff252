package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-lipsync/internal/audio"
	"github.com/alnah/go-lipsync/internal/cli"
	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/config"
	"github.com/alnah/go-lipsync/internal/ffmpeg"
	"github.com/alnah/go-lipsync/internal/interrupt"
	"github.com/alnah/go-lipsync/internal/pipeline"
	"github.com/alnah/go-lipsync/internal/scratch"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitProcessing = 5
	ExitInterrupt  = interrupt.ExitInterrupt
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// First Ctrl+C cancels and cleans up, second forces exit.
	handler, ctx := interrupt.NewHandler(context.Background())

	env := cli.NewEnv(cli.WithVersion(version))

	err := newRootCmd(env).ExecuteContext(ctx)
	handler.Stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// newRootCmd assembles the command tree.
func newRootCmd(env *cli.Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lipsync",
		Short: "Generate lip sync mouth cues from speech audio",
		Long: `Generate lip sync mouth cues from speech audio with Rhubarb Lip Sync.

Requires ffmpeg, ffprobe and rhubarb. Run "lipsync doctor" to check them.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cli.AddGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(cli.AnalyzeCmd(env))
	rootCmd.AddCommand(cli.PredictCmd(env))
	rootCmd.AddCommand(cli.ServeCmd(env))
	rootCmd.AddCommand(cli.DoctorCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	return rootCmd
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Cobra doesn't expose typed errors for flag and argument parsing.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors: the environment cannot run the pipeline.
	if errors.Is(err, command.ErrNotFound) || errors.Is(err, command.ErrStart) ||
		errors.Is(err, cli.ErrDoctorFailed) {
		return ExitSetup
	}

	// Validation errors: bad input or configuration.
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, cli.ErrOutputExists) ||
		errors.Is(err, cli.ErrEmptyInput) || errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, config.ErrConfigFile) || errors.Is(err, pipeline.ErrInvalidRequest) ||
		errors.Is(err, pipeline.ErrDecode) || errors.Is(err, pipeline.ErrNoAudio) {
		return ExitValidation
	}

	// Processing errors: a fatal pipeline stage failed.
	if errors.Is(err, ffmpeg.ErrConversion) || errors.Is(err, ffmpeg.ErrProbe) ||
		errors.Is(err, audio.ErrSegmentation) || errors.Is(err, command.ErrTimeout) ||
		errors.Is(err, scratch.ErrRunClosed) {
		return ExitProcessing
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// These patterns are stable across Cobra versions (tested with v1.8+).
var cobraUsageErrorPatterns = []string{
	"required flag",             // Missing required flag
	"unknown flag",              // Flag doesn't exist
	"unknown shorthand",         // Short flag doesn't exist
	"unknown command",           // Subcommand doesn't exist
	"flag needs an argument",    // Flag provided without value
	"invalid argument",          // Invalid flag value type
	"if any flags in the group", // Mutually exclusive flag violation
	"accepts ",                  // Wrong number of arguments (e.g., "accepts 1 arg(s)")
	"requires at least",         // Too few arguments
	"requires at most",          // Too many arguments
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
