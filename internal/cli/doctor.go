package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/config"
)

// DoctorCmd creates the doctor command.
// The env parameter provides injectable dependencies for testing.
func DoctorCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that external tools and the scratch directory are usable",
		Long: `Check that ffmpeg, ffprobe and rhubarb can be found and report their
versions, and that the scratch directory is writable.

Tools are looked up from the configured path, then the FFMPEG_PATH,
FFPROBE_PATH and RHUBARB_PATH environment variables, then PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, env)
		},
	}

	addPipelineFlags(cmd.Flags())

	return cmd
}

// runDoctor prints one line per check and fails if any check failed.
func runDoctor(cmd *cobra.Command, env *Env) error {
	ctx := cmd.Context()

	cfg, _, err := loadConfig(cmd, env)
	if err != nil {
		return err
	}

	checks := []struct {
		tool     command.Tool
		override string
	}{
		{command.FFmpeg, cfg.FFmpegPath},
		{command.FFprobe, cfg.FFprobePath},
		{command.Rhubarb, cfg.RhubarbPath},
	}

	tw := tabwriter.NewWriter(env.Stdout, 0, 0, 2, ' ', 0)
	var failed []string

	for _, c := range checks {
		path, err := env.ToolResolver.Resolve(c.tool, c.override)
		if err != nil {
			failed = append(failed, c.tool.Name)
			fmt.Fprintf(tw, "%s\tmissing\t%s\n", c.tool.Name, firstLine(err.Error()))
			fmt.Fprintf(env.Stderr, "\n%v\n", err)
			continue
		}
		version, err := env.ToolResolver.Version(ctx, c.tool, path)
		if err != nil {
			failed = append(failed, c.tool.Name)
			fmt.Fprintf(tw, "%s\tbroken\t%s: %v\n", c.tool.Name, path, err)
			continue
		}
		fmt.Fprintf(tw, "%s\tok\t%s\t%s\n", c.tool.Name, path, version)
	}

	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = "(system temp dir)"
	}
	if err := config.ValidScratchDir(cfg.ScratchDir); err != nil {
		failed = append(failed, "scratch-dir")
		fmt.Fprintf(tw, "scratch-dir\tbroken\t%s: %v\n", scratchDir, err)
	} else {
		fmt.Fprintf(tw, "scratch-dir\tok\t%s\n", scratchDir)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrDoctorFailed, strings.Join(failed, ", "))
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
