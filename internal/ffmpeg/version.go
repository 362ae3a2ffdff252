package ffmpeg

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/alnah/go-lipsync/internal/command"
)

// minFFmpegMajorVersion is the minimum supported ffmpeg version.
// Older builds mishandle -ss after -i on long PCM inputs.
const minFFmpegMajorVersion = 4

// VersionChecker verifies ffmpeg version requirements.
type VersionChecker struct {
	cmd command.Runner
	log logrus.FieldLogger
}

// VersionCheckerOption configures a VersionChecker.
type VersionCheckerOption func(*VersionChecker)

// WithVersionRunner sets the runner used to invoke ffmpeg.
func WithVersionRunner(r command.Runner) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.cmd = r }
}

// WithVersionLogger sets the logger receiving the version warning.
func WithVersionLogger(l logrus.FieldLogger) VersionCheckerOption {
	return func(vc *VersionChecker) { vc.log = l }
}

// NewVersionChecker creates a VersionChecker with the given options.
func NewVersionChecker(opts ...VersionCheckerOption) *VersionChecker {
	vc := &VersionChecker{
		cmd: command.NewExecutor(),
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(vc)
	}
	return vc
}

// Check verifies that ffmpeg meets minimum version requirements.
// Logs a warning if the version is below minimum but doesn't fail.
// Returns true if the version was successfully checked, false if parsing failed.
func (vc *VersionChecker) Check(ctx context.Context, ffmpegPath string) bool {
	line, err := command.Version(ctx, vc.cmd, command.FFmpeg, ffmpegPath)
	if err != nil || line == "" {
		return false
	}

	major, ok := parseMajorVersion(line)
	if !ok {
		return false
	}

	if major < minFFmpegMajorVersion {
		vc.log.WithField("version", major).
			Warnf("ffmpeg version %d detected, version %d+ recommended", major, minFFmpegMajorVersion)
	}
	return true
}

// parseMajorVersion extracts the major version from a banner such as
// "ffmpeg version 6.1.1 Copyright..." or "ffmpeg version n6.1.1...".
func parseMajorVersion(line string) (int, bool) {
	var major int
	if _, err := fmt.Sscanf(line, "ffmpeg version %d", &major); err == nil {
		return major, true
	}
	if _, err := fmt.Sscanf(line, "ffmpeg version n%d", &major); err == nil {
		return major, true
	}
	return 0, false
}
