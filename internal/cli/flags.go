package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/config"
)

const flagConfig = "config"

// AddGlobalFlags registers the flags shared by every command.
// Attach them to the root command's persistent flags.
func AddGlobalFlags(fs *pflag.FlagSet) {
	d := config.Defaults()
	fs.String(flagConfig, "", "Config file (default: $XDG_CONFIG_HOME/go-lipsync/config.yaml)")
	fs.String(config.KeyLogLevel, d.LogLevel, "Log level: debug, info, warn, error")
	fs.String(config.KeyLogFormat, d.LogFormat, "Log format: text, json")
}

// addPipelineFlags registers the flags configuring a pipeline.
// Values only override other sources when set on the command line.
func addPipelineFlags(fs *pflag.FlagSet) {
	d := config.Defaults()
	fs.String(config.KeyScratchDir, d.ScratchDir, "Directory for temporary files (default: system temp dir)")
	fs.Duration(config.KeyWindow, d.Window, "Segment length, with a unit (e.g. 30s, 1m)")
	fs.Duration(config.KeyMinSegment, d.MinSegment, "Shortest segment analyzed, with a unit; shorter trailing segments are skipped")
	fs.IntP(config.KeyParallel, "p", d.Parallel, "Max concurrent rhubarb processes per run")
	fs.Duration(config.KeyToolTimeout, d.ToolTimeout, "Timeout of a single ffmpeg, ffprobe or rhubarb invocation (0 disables)")
	fs.String(config.KeyRecognizer, d.Recognizer, "Rhubarb recognizer: phonetic, pocketSphinx")
	fs.String(config.KeyExtShapes, d.ExtendedShapes, "Extended mouth shapes rhubarb may use, e.g. GX (default: GHX)")
	fs.String(config.KeyFFmpegPath, "", "Path to ffmpeg (default: $FFMPEG_PATH or PATH)")
	fs.String(config.KeyFFprobePath, "", "Path to ffprobe (default: $FFPROBE_PATH or PATH)")
	fs.String(config.KeyRhubarbPath, "", "Path to rhubarb (default: $RHUBARB_PATH or PATH)")
}

// loadConfig loads the configuration for cmd and builds its logger.
func loadConfig(cmd *cobra.Command, env *Env) (config.Config, *logrus.Logger, error) {
	cfg, err := env.ConfigLoader.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := newLogger(env.Stderr, cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return cfg, log, nil
}

// resolveTools locates ffmpeg, ffprobe and rhubarb. The ffmpeg version is
// checked on the way, logging a warning for outdated builds.
func resolveTools(ctx context.Context, env *Env, cfg config.Config, log logrus.FieldLogger) (Tools, error) {
	var tools Tools
	var err error

	if tools.FFmpeg, err = env.ToolResolver.Resolve(command.FFmpeg, cfg.FFmpegPath); err != nil {
		return Tools{}, err
	}
	if tools.FFprobe, err = env.ToolResolver.Resolve(command.FFprobe, cfg.FFprobePath); err != nil {
		return Tools{}, err
	}
	if tools.Rhubarb, err = env.ToolResolver.Resolve(command.Rhubarb, cfg.RhubarbPath); err != nil {
		return Tools{}, err
	}

	env.ToolResolver.CheckFFmpeg(ctx, log, tools.FFmpeg)
	log.WithFields(logrus.Fields{
		"ffmpeg":  tools.FFmpeg,
		"ffprobe": tools.FFprobe,
		"rhubarb": tools.Rhubarb,
	}).Debug("tools resolved")
	return tools, nil
}
