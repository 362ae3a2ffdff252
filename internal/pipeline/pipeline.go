// Package pipeline turns audio bytes into mouth cues.
//
// A run writes the audio to a scratch file, normalizes it to canonical PCM,
// probes its duration, splits it into fixed windows and analyzes the windows
// in parallel. Per-segment failures are absorbed: the segment contributes no
// cues and the run continues. Every scratch file allocated by a run is removed
// before Run returns, whatever the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-lipsync/internal/audio"
	"github.com/alnah/go-lipsync/internal/cue"
	"github.com/alnah/go-lipsync/internal/lipsync"
	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/scratch"
)

// Scratch roles of a run.
const (
	roleInput      = "input"
	roleNormalized = "normalized.wav"
)

// Stage names, used in logs and metrics.
const (
	StageInput     = "input"
	StageNormalize = "normalize"
	StageProbe     = "probe"
	StageSegment   = "segment"
	StageAnalyze   = "analyze"
)

// Segment failure reasons.
const (
	reasonExtraction = "extraction"
	reasonAnalysis   = "analysis"
)

// Transcoder converts arbitrary audio to canonical PCM.
type Transcoder interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// Prober reads the duration of an audio file.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Segmenter splits normalized audio into extracted windows.
type Segmenter interface {
	Segment(ctx context.Context, alloc audio.PathAllocator, wavPath string, total time.Duration) ([]audio.Segment, error)
}

// Components are the collaborators a Pipeline sequences.
type Components struct {
	Store      *scratch.Store
	Transcoder Transcoder
	Prober     Prober
	Segmenter  Segmenter
	Analyzer   lipsync.Analyzer
}

// Pipeline runs audio through normalization, segmentation and analysis.
// It is safe for concurrent use; each run owns its scratch namespace.
type Pipeline struct {
	store      *scratch.Store
	transcoder Transcoder
	prober     Prober
	segmenter  Segmenter
	analyzer   lipsync.Analyzer

	parallel int
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParallel bounds the number of concurrent analyzer invocations per run.
// Values are clamped to [1, 4*NumCPU].
func WithParallel(n int) Option {
	return func(p *Pipeline) { p.parallel = n }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline from its components.
func New(c Components, opts ...Option) (*Pipeline, error) {
	switch {
	case c.Store == nil:
		return nil, errors.New("pipeline: scratch store is required")
	case c.Transcoder == nil:
		return nil, errors.New("pipeline: transcoder is required")
	case c.Prober == nil:
		return nil, errors.New("pipeline: prober is required")
	case c.Segmenter == nil:
		return nil, errors.New("pipeline: segmenter is required")
	case c.Analyzer == nil:
		return nil, errors.New("pipeline: analyzer is required")
	}

	p := &Pipeline{
		store:      c.Store,
		transcoder: c.Transcoder,
		prober:     c.Prober,
		segmenter:  c.Segmenter,
		analyzer:   c.Analyzer,
		parallel:   runtime.NumCPU(),
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.parallel = ClampParallel(p.parallel)
	if p.metrics == nil {
		p.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	return p, nil
}

// ClampParallel bounds n to [1, 4*NumCPU].
func ClampParallel(n int) int {
	return min(max(n, 1), 4*runtime.NumCPU())
}

// Parallel returns the effective analyzer concurrency.
func (p *Pipeline) Parallel() int {
	return p.parallel
}

// Run processes data and returns the merged mouth cues in absolute time,
// sorted by start. The returned slice is never nil on success.
//
// Fatal failures (input, normalization, probing, segmentation, cancellation)
// abort the run. Scratch files are removed before Run returns in every case.
func (p *Pipeline) Run(ctx context.Context, data []byte) (_ []cue.MouthCue, err error) {
	if len(data) == 0 {
		return nil, ErrNoAudio
	}

	run := &runFiles{Run: p.store.NewRun()}
	log := p.log.WithField("run_id", run.ID())
	started := time.Now()
	p.metrics.RecordRunStarted()

	defer func() {
		if cerr := run.Cleanup(); cerr != nil || run.releaseFailed.Load() {
			p.metrics.RecordCleanupFailure()
		}
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		p.metrics.RecordRunCompleted(outcome, time.Since(started))
	}()

	log.WithField("bytes", len(data)).Debug("run started")

	inputPath, err := run.WriteFile(roleInput, data)
	if err != nil {
		return nil, p.fail(log, StageInput, fmt.Errorf("write input: %w", err))
	}

	wavPath, err := run.Path(roleNormalized)
	if err != nil {
		return nil, p.fail(log, StageNormalize, err)
	}
	if err := p.transcoder.Normalize(ctx, inputPath, wavPath); err != nil {
		return nil, p.fail(log, StageNormalize, err)
	}
	run.release(inputPath)

	total, err := p.prober.ProbeDuration(ctx, wavPath)
	if err != nil {
		return nil, p.fail(log, StageProbe, err)
	}

	segments, err := p.segmenter.Segment(ctx, run, wavPath, total)
	if err != nil {
		return nil, p.fail(log, StageSegment, err)
	}
	run.release(wavPath)
	p.metrics.RecordAudio(total, len(segments))
	log.WithFields(logrus.Fields{
		"duration": total,
		"segments": len(segments),
	}).Info("audio segmented")

	results, err := p.analyzeAll(ctx, run, log, segments)
	if err != nil {
		return nil, p.fail(log, StageAnalyze, err)
	}

	cues := cue.Merge(results)
	p.metrics.RecordCues(len(cues))
	log.WithFields(logrus.Fields{
		"cues":    len(cues),
		"elapsed": time.Since(started).Round(time.Millisecond),
	}).Info("run completed")
	return cues, nil
}

// runFiles is a run's scratch namespace that remembers early release
// failures. Release marks a path removed even when removal fails, so Cleanup
// alone would not report it.
type runFiles struct {
	*scratch.Run
	releaseFailed atomic.Bool
}

// release removes p now. Failures are logged by the scratch run.
func (r *runFiles) release(p string) {
	if err := r.Release(p); err != nil {
		r.releaseFailed.Store(true)
	}
}

// fail records a fatal stage failure and returns err unchanged.
func (p *Pipeline) fail(log logrus.FieldLogger, stage string, err error) error {
	p.metrics.RecordStageFailure(stage)
	log.WithField("stage", stage).WithError(err).Error("run failed")
	return err
}

// analyzeAll runs the analyzer over every extracted segment with bounded
// parallelism. Each worker writes to the slot of its segment, so the result
// order does not depend on completion order. Analyzer failures are absorbed;
// only cancellation of ctx fails the whole set.
func (p *Pipeline) analyzeAll(ctx context.Context, run *runFiles, log logrus.FieldLogger, segments []audio.Segment) ([]cue.SegmentCues, error) {
	results := make([]cue.SegmentCues, len(segments))
	// Semaphore channel for concurrency control.
	sem := make(chan struct{}, p.parallel)

	g, gctx := errgroup.WithContext(ctx)

	for i, seg := range segments {
		results[i] = cue.SegmentCues{Index: seg.Index, Offset: seg.Start}
		segLog := log.WithField("segment", seg.Index)

		switch {
		case seg.Skipped:
			segLog.WithField("duration", seg.Duration).Debug("segment skipped")
			continue
		case seg.Err != nil:
			p.metrics.RecordSegmentFailure(reasonExtraction)
			segLog.WithError(seg.Err).Warn("segment dropped")
			run.release(seg.Path)
			continue
		}

		g.Go(func() error {
			defer run.release(seg.Path)

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			outPath, err := run.Path(fmt.Sprintf("segment-%03d.json", seg.Index))
			if err != nil {
				return err
			}
			defer run.release(outPath)

			cues, err := p.analyzer.Analyze(gctx, seg.Path, outPath)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.metrics.RecordSegmentFailure(reasonAnalysis)
				segLog.WithError(err).Warn("segment analysis failed, continuing without its cues")
				return nil
			}
			results[i].Cues = cues
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze segments: %w", err)
	}
	return results, nil
}
