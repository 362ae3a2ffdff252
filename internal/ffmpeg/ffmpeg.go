// Package ffmpeg drives the ffmpeg and ffprobe binaries: it normalizes audio
// to canonical PCM, extracts time windows and probes durations.
package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-lipsync/internal/command"
)

// Canonical PCM format expected by the segmenter and the analyzer.
const (
	SampleRate = 44100
	Channels   = 1
	Codec      = "pcm_s16le"
)

// pcmArgs returns the ffmpeg output arguments selecting canonical PCM.
func pcmArgs() []string {
	return []string{
		"-acodec", Codec,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
	}
}

// Transcoder converts audio files with ffmpeg.
type Transcoder struct {
	ffmpegPath string
	cmd        command.Runner
}

// NewTranscoder creates a Transcoder using the ffmpeg binary at ffmpegPath.
func NewTranscoder(ffmpegPath string, runner command.Runner) (*Transcoder, error) {
	if ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpegPath cannot be empty: %w", command.ErrNotFound)
	}
	if runner == nil {
		runner = command.NewExecutor()
	}
	return &Transcoder{ffmpegPath: ffmpegPath, cmd: runner}, nil
}

// Normalize converts inputPath to canonical PCM at outputPath, overwriting it.
// The returned error wraps ErrConversion and carries ffmpeg's diagnostics.
func (t *Transcoder) Normalize(ctx context.Context, inputPath, outputPath string) error {
	args := []string{"-y", "-i", inputPath}
	args = append(args, pcmArgs()...)
	args = append(args, outputPath)
	return t.run(ctx, args, "normalize "+inputPath)
}

// Extract writes the window [start, start+length) of inputPath to outputPath
// as canonical PCM. ffmpeg clamps the window to the end of the stream.
func (t *Transcoder) Extract(ctx context.Context, inputPath, outputPath string, start, length time.Duration) error {
	// -ss after -i seeks by decoding, which is sample accurate on PCM input.
	args := []string{
		"-y",
		"-i", inputPath,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
	}
	args = append(args, pcmArgs()...)
	args = append(args, outputPath)
	return t.run(ctx, args, "extract "+outputPath)
}

func (t *Transcoder) run(ctx context.Context, args []string, what string) error {
	res, err := t.cmd.Run(ctx, t.ffmpegPath, args)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConversion, what, err)
	}
	if !res.Success() {
		return fmt.Errorf("%w: %s: ffmpeg exited with status %d\nOutput: %s",
			ErrConversion, what, res.ExitCode, res.Diagnostic())
	}
	return nil
}

// Prober reads media durations with ffprobe.
type Prober struct {
	ffprobePath string
	cmd         command.Runner
}

// NewProber creates a Prober using the ffprobe binary at ffprobePath.
func NewProber(ffprobePath string, runner command.Runner) (*Prober, error) {
	if ffprobePath == "" {
		return nil, fmt.Errorf("ffprobePath cannot be empty: %w", command.ErrNotFound)
	}
	if runner == nil {
		runner = command.NewExecutor()
	}
	return &Prober{ffprobePath: ffprobePath, cmd: runner}, nil
}

// ProbeDuration returns the container duration of path.
// The result is always positive; anything else wraps ErrProbe.
func (p *Prober) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	}
	res, err := p.cmd.Run(ctx, p.ffprobePath, args)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbe, err)
	}
	if !res.Success() {
		return 0, fmt.Errorf("%w: ffprobe exited with status %d: %s", ErrProbe, res.ExitCode, res.Diagnostic())
	}
	return parseProbeOutput(string(res.Stdout))
}

// parseProbeOutput parses ffprobe's "format=duration" csv output, e.g. "12.345000".
func parseProbeOutput(output string) (time.Duration, error) {
	s := strings.TrimSpace(output)
	// Some builds print one line per stream group; the first one is the format.
	s, _, _ = strings.Cut(s, "\n")
	s = strings.TrimSpace(s)

	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot parse duration %q", ErrProbe, s)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, fmt.Errorf("%w: invalid duration %q", ErrProbe, s)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// formatSeconds formats d as decimal seconds for -ss/-t arguments.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
