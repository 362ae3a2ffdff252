// Package server exposes the lip sync pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/alnah/go-lipsync/internal/metrics"
	"github.com/alnah/go-lipsync/internal/pipeline"
)

// Server defaults.
const (
	DefaultAddr         = ":5000"
	DefaultMaxBodyBytes = 64 << 20
	shutdownTimeout     = 30 * time.Second
)

// Predictor answers lip sync requests.
type Predictor interface {
	Predict(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Server serves predictions, health and metrics.
type Server struct {
	server    *http.Server
	predictor Predictor
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	maxBody   int64
	version   string
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics sets the metrics recorded by the server and the gatherer
// exposed on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithMaxBodyBytes bounds the size of a prediction request body.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a Server listening on addr.
func New(addr string, p Predictor, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		predictor: p,
		log:       logrus.StandardLogger(),
		maxBody:   DefaultMaxBodyBytes,
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		s.metrics = metrics.NewMetrics(reg)
		s.gatherer = reg
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	// Analysis of long clips takes minutes; only reads are bounded.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", s.withMetrics("/predictions", s.handlePredict))
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
// Request contexts derive from ctx, so in-flight predictions are canceled
// with it and remove their scratch files before Shutdown returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("address", s.server.Addr).Info("HTTP server listening")
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// withMetrics wraps an HTTP handler with metrics collection.
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		elapsed := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), elapsed)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   ww.statusCode,
			"elapsed":  elapsed.Round(time.Millisecond),
		}).Debug("HTTP request")
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handlePredict implements POST /predictions.
// Pipeline failures are reported in the body with status 200; only requests
// that cannot be read as a request object are rejected.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeJSON(w, http.StatusMethodNotAllowed, pipeline.ErrorResult("method not allowed"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge,
				pipeline.ErrorResult(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		s.writeJSON(w, http.StatusBadRequest, pipeline.ErrorResult("cannot read request body"))
		return
	}

	req, err := pipeline.ParseRequest(body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, pipeline.ErrorResult(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, s.predictor.Predict(r.Context(), req))
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("cannot write response")
	}
}
