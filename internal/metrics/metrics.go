// Package metrics defines the Prometheus instruments for lip sync runs and
// the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lipsync"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all lip sync metrics.
type Metrics struct {
	// Pipeline metrics
	RunsStarted     prometheus.Counter
	RunsCompleted   *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	ActiveRuns      prometheus.Gauge
	AudioDuration   prometheus.Histogram
	Segments        prometheus.Counter
	SegmentFailures *prometheus.CounterVec
	CuesProduced    prometheus.Counter
	CleanupFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of pipeline runs completed, by outcome",
		}, []string{"outcome"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of fatal stage failures, by stage",
		}, []string{"stage"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of pipeline runs in progress",
		}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Probed duration of normalized input audio",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		Segments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Total number of planned audio segments",
		}),
		SegmentFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_failures_total",
			Help:      "Total number of absorbed per-segment failures, by reason",
		}, []string{"reason"}),
		CuesProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mouth_cues_total",
			Help:      "Total number of mouth cues returned",
		}),
		CleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Total number of runs whose scratch cleanup failed",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordRunStarted marks a run as started and in progress.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
	m.ActiveRuns.Inc()
}

// RecordRunCompleted marks a run as finished with its outcome and wall time.
func (m *Metrics) RecordRunCompleted(outcome string, elapsed time.Duration) {
	m.ActiveRuns.Dec()
	m.RunsCompleted.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// RecordStageFailure counts a fatal failure in stage.
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordAudio records the probed duration and the planned segment count.
func (m *Metrics) RecordAudio(d time.Duration, segments int) {
	m.AudioDuration.Observe(d.Seconds())
	m.Segments.Add(float64(segments))
}

// RecordSegmentFailure counts an absorbed segment failure.
func (m *Metrics) RecordSegmentFailure(reason string) {
	m.SegmentFailures.WithLabelValues(reason).Inc()
}

// RecordCues counts mouth cues returned by a successful run.
func (m *Metrics) RecordCues(n int) {
	m.CuesProduced.Add(float64(n))
}

// RecordCleanupFailure counts a run whose scratch files were not all removed.
func (m *Metrics) RecordCleanupFailure() {
	m.CleanupFailures.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
