package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"

	"github.com/alnah/go-lipsync/internal/audio"
	"github.com/alnah/go-lipsync/internal/command"
	"github.com/alnah/go-lipsync/internal/ffmpeg"
	"github.com/alnah/go-lipsync/internal/lipsync"
	"github.com/alnah/go-lipsync/internal/pipeline"
	"github.com/alnah/go-lipsync/internal/scratch"
)

// ---------------------------------------------------------------------------
// fakeTools - emulates ffmpeg, ffprobe and rhubarb through command.Runner
// ---------------------------------------------------------------------------

var segmentFile = regexp.MustCompile(`segment-(\d{3})\.wav$`)

// fakeTools writes the files the real tools would write. Rhubarb emits two
// cues per segment, at 0.1s and 0.6s, whose value names the segment index.
type fakeTools struct {
	duration      string // ffprobe stdout
	normalizeExit int
	failExtract   map[int]bool
	failAnalyze   map[int]bool
	analyzeDelay  time.Duration
	blockAnalyze  bool          // rhubarb waits for ctx cancellation
	started       chan struct{} // signaled when rhubarb starts, if non-nil

	mu        sync.Mutex
	calls     map[string]int
	analyzed  []string
	active    int
	maxActive int
}

func newFakeTools(duration string) *fakeTools {
	return &fakeTools{duration: duration, calls: make(map[string]int)}
}

func (f *fakeTools) Run(ctx context.Context, name string, args []string) (command.Result, error) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()

	switch name {
	case "ffmpeg":
		return f.ffmpeg(args)
	case "ffprobe":
		return command.Result{Stdout: []byte(f.duration + "\n")}, nil
	case "rhubarb":
		return f.rhubarb(ctx, args)
	}
	return command.Result{ExitCode: 127}, nil
}

func (f *fakeTools) ffmpeg(args []string) (command.Result, error) {
	out := args[len(args)-1]
	extracting := slices.Contains(args, "-ss")
	if !extracting && f.normalizeExit != 0 {
		return command.Result{ExitCode: f.normalizeExit, Stderr: []byte("Invalid data found when processing input")}, nil
	}
	if extracting && f.failExtract[segmentIndex(out)] {
		return command.Result{ExitCode: 1, Stderr: []byte("Output file is empty")}, nil
	}
	if err := os.WriteFile(out, []byte("RIFF"), 0600); err != nil {
		return command.Result{}, err
	}
	return command.Result{}, nil
}

func (f *fakeTools) rhubarb(ctx context.Context, args []string) (command.Result, error) {
	in, out := args[0], args[slices.Index(args, "-o")+1]
	idx := segmentIndex(in)

	f.mu.Lock()
	f.analyzed = append(f.analyzed, in)
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.blockAnalyze {
		<-ctx.Done()
		return command.Result{ExitCode: -1}, ctx.Err()
	}
	if f.analyzeDelay > 0 {
		time.Sleep(f.analyzeDelay)
	}
	if _, err := os.Stat(in); err != nil {
		return command.Result{ExitCode: 1, Stderr: []byte(err.Error())}, nil
	}
	if f.failAnalyze[idx] {
		return command.Result{ExitCode: 1, Stderr: []byte("Error processing file")}, nil
	}

	export := fmt.Sprintf(`{"mouthCues":[{"start":0.10,"end":0.60,"value":"s%d"},{"start":0.60,"end":0.90,"value":"s%d"}]}`, idx, idx)
	if err := os.WriteFile(out, []byte(export), 0600); err != nil {
		return command.Result{}, err
	}
	return command.Result{}, nil
}

func (f *fakeTools) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeTools) analyzedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.analyzed)
}

func segmentIndex(path string) int {
	m := segmentFile.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return -1
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestPipeline wires real components to tools. It returns the pipeline
// and its scratch directory.
func newTestPipeline(t *testing.T, tools *fakeTools, opts ...pipeline.Option) (*pipeline.Pipeline, string) {
	t.Helper()
	return newTestPipelineWithStore(t, tools, nil, opts...)
}

// newTestPipelineWithStore is newTestPipeline with extra scratch store options.
func newTestPipelineWithStore(t *testing.T, tools *fakeTools, storeOpts []scratch.StoreOption, opts ...pipeline.Option) (*pipeline.Pipeline, string) {
	t.Helper()

	dir := t.TempDir()
	storeOpts = append([]scratch.StoreOption{scratch.WithLogger(quietLogger())}, storeOpts...)
	store, err := scratch.NewStore(dir, storeOpts...)
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	transcoder, err := ffmpeg.NewTranscoder("ffmpeg", tools)
	if err != nil {
		t.Fatalf("NewTranscoder() unexpected error: %v", err)
	}
	prober, err := ffmpeg.NewProber("ffprobe", tools)
	if err != nil {
		t.Fatalf("NewProber() unexpected error: %v", err)
	}
	segmenter, err := audio.NewSegmenter(transcoder)
	if err != nil {
		t.Fatalf("NewSegmenter() unexpected error: %v", err)
	}
	analyzer, err := lipsync.NewRhubarb("rhubarb", tools)
	if err != nil {
		t.Fatalf("NewRhubarb() unexpected error: %v", err)
	}

	opts = append([]pipeline.Option{pipeline.WithLogger(quietLogger())}, opts...)
	p, err := pipeline.New(pipeline.Components{
		Store:      store,
		Transcoder: transcoder,
		Prober:     prober,
		Segmenter:  segmenter,
		Analyzer:   analyzer,
	}, opts...)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return p, dir
}

// failingWriter fails every scratch write.
type failingWriter struct{}

func (failingWriter) WriteFile(string, []byte, os.FileMode) error {
	return errors.New("read-only file system")
}

// failingRemover fails removal of files whose name ends with suffix.
type failingRemover struct {
	suffix string
}

func (f failingRemover) Remove(name string) error {
	if strings.HasSuffix(name, f.suffix) {
		return errors.New("permission denied")
	}
	return os.Remove(name)
}

// counterValue reads the current value of a counter.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// assertEmptyDir fails the test if dir holds any file.
func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) unexpected error: %v", dir, err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("scratch directory not empty: %v", names)
	}
}
