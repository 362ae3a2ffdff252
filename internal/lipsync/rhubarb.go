// Package lipsync runs Rhubarb Lip Sync on audio segments and parses its
// JSON export into mouth cues.
package lipsync

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/cue"
)

// Recognizers supported by rhubarb.
const (
	RecognizerPhonetic     = "phonetic"
	RecognizerPocketSphinx = "pocketSphinx"
)

// Analyzer turns one audio segment into segment-local mouth cues.
// outputPath is a scratch path the analyzer may write its raw export to.
type Analyzer interface {
	Analyze(ctx context.Context, segmentPath, outputPath string) ([]cue.MouthCue, error)
}

// fileReader reads files.
type fileReader interface {
	ReadFile(name string) ([]byte, error)
}

// osFileReader implements fileReader using os.ReadFile.
type osFileReader struct{}

func (osFileReader) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Compile-time interface verification.
var _ Analyzer = (*Rhubarb)(nil)

// Rhubarb analyzes segments with the rhubarb command-line tool.
type Rhubarb struct {
	path           string
	cmd            command.Runner
	files          fileReader
	recognizer     string
	extendedShapes string
}

// RhubarbOption configures a Rhubarb analyzer.
type RhubarbOption func(*Rhubarb)

// WithRecognizer selects the rhubarb recognizer.
func WithRecognizer(name string) RhubarbOption {
	return func(r *Rhubarb) { r.recognizer = name }
}

// WithExtendedShapes selects which extended shapes (G, H, X) rhubarb may emit.
// An empty string keeps rhubarb's default.
func WithExtendedShapes(shapes string) RhubarbOption {
	return func(r *Rhubarb) { r.extendedShapes = shapes }
}

// WithFileReader sets the reader for rhubarb's export file (for testing).
func WithFileReader(f fileReader) RhubarbOption {
	return func(r *Rhubarb) { r.files = f }
}

// NewRhubarb creates an analyzer using the rhubarb binary at path.
func NewRhubarb(path string, runner command.Runner, opts ...RhubarbOption) (*Rhubarb, error) {
	if path == "" {
		return nil, fmt.Errorf("rhubarb path cannot be empty: %w", command.ErrNotFound)
	}
	if runner == nil {
		runner = command.NewExecutor()
	}
	r := &Rhubarb{
		path:       path,
		cmd:        runner,
		files:      osFileReader{},
		recognizer: RecognizerPhonetic,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Analyze runs rhubarb on segmentPath, exporting JSON to outputPath, and
// returns the parsed cues. Every failure wraps ErrAnalysis.
func (r *Rhubarb) Analyze(ctx context.Context, segmentPath, outputPath string) ([]cue.MouthCue, error) {
	res, err := r.cmd.Run(ctx, r.path, r.args(segmentPath, outputPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAnalysis, segmentPath, err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("%w: %s: rhubarb exited with status %d\nOutput: %s",
			ErrAnalysis, segmentPath, res.ExitCode, res.Diagnostic())
	}

	data, err := r.files.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read export: %w", ErrAnalysis, err)
	}
	return ParseCues(data)
}

func (r *Rhubarb) args(segmentPath, outputPath string) []string {
	args := []string{
		segmentPath,
		"-o", outputPath,
		"--exportFormat", "json",
		"--recognizer", r.recognizer,
		"--machineReadable",
		"--quiet",
	}
	if r.extendedShapes != "" {
		args = append(args, "--extendedShapes", r.extendedShapes)
	}
	return args
}

// ParseCues extracts the mouthCues array from a rhubarb JSON export.
// Cues ending before they start are dropped. A document without cues yields
// an empty, non-nil slice.
func ParseCues(data []byte) ([]cue.MouthCue, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: export is not valid JSON", ErrAnalysis)
	}

	list := gjson.GetBytes(data, "mouthCues")
	if list.Exists() && !list.IsArray() {
		return nil, fmt.Errorf("%w: mouthCues is %s, not an array", ErrAnalysis, list.Type)
	}

	cues := make([]cue.MouthCue, 0, len(list.Array()))
	for i, item := range list.Array() {
		start, end, value := item.Get("start"), item.Get("end"), item.Get("value")
		if start.Type != gjson.Number || end.Type != gjson.Number || value.Type != gjson.String {
			return nil, fmt.Errorf("%w: malformed cue %d: %s", ErrAnalysis, i, item.Raw)
		}
		c := cue.MouthCue{Start: start.Float(), End: end.Float(), Value: value.String()}
		if c.End < c.Start {
			continue
		}
		cues = append(cues, c)
	}
	return cues, nil
}
