package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vjranagit/editmetrics/pkg/pipeline"
	"github.com/vjranagit/editmetrics/pkg/storage"
	"github.com/vjranagit/editmetrics/pkg/types"
)

// Options configures the API server
type Options struct {
	Addr    string
	Timeout time.Duration

	// Axes are the axis runs that /api/v1/series can serve, by axis name.
	Axes []pipeline.AxisRequest
	Heap pipeline.HeapRequest

	Reference string
	Documents string

	SkipMalformed bool

	// Archive backs /api/v1/history and /api/v1/runs; optional.
	Archive storage.Archive
	// Cache holds assembled axis results; optional.
	Cache *storage.ResultCache
	// Gatherer is exposed on /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// Server implements the HTTP API server
type Server struct {
	runner *pipeline.Runner
	opts   Options
	axes   map[string]pipeline.AxisRequest
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, runner *pipeline.Runner, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	axes := make(map[string]pipeline.AxisRequest, len(opts.Axes))
	for _, req := range opts.Axes {
		axes[req.Axis.Name] = req
	}

	return &Server{
		runner: runner,
		opts:   opts,
		axes:   axes,
		logger: logger,
	}
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/series", s.get(s.handleSeries))
	mux.HandleFunc("/api/v1/interleaving", s.get(s.handleInterleaving))
	mux.HandleFunc("/api/v1/heap", s.get(s.handleHeap))
	mux.HandleFunc("/api/v1/history", s.get(s.handleHistory))
	mux.HandleFunc("/api/v1/runs", s.get(s.handleRuns))
	mux.HandleFunc("/health", s.get(s.handleHealth))
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.Timeout,
		WriteTimeout: s.opts.Timeout,
	}

	s.logger.Info("API server listening", zap.String("addr", s.opts.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// handleSeries serves one configured axis, raw and normalized
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("axis")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing axis parameter"))
		return
	}
	req, ok := s.axes[name]
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown axis %q", name))
		return
	}
	normalize := r.URL.Query().Get("normalize") != "false"

	key := storage.ResultKey{
		Axis:          req.Axis.Name,
		Variant:       req.Variant,
		Dir:           req.Dir,
		Metrics:       req.Axis.Metrics,
		SkipMalformed: s.opts.SkipMalformed,
	}

	var res *types.AxisResult
	if s.opts.Cache != nil && r.URL.Query().Get("refresh") != "true" {
		res, _ = s.opts.Cache.Get(key)
	}

	if res == nil {
		var err error
		res, err = s.runner.RunAxis(r.Context(), req)
		if err != nil {
			s.writeRunError(w, err, res)
			return
		}
		if s.opts.Cache != nil {
			s.opts.Cache.Put(key, res)
		}
	}

	if !normalize {
		stripped := *res
		stripped.Normalized = nil
		res = &stripped
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInterleaving(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.Interleaving(r.Context(), s.opts.Reference, s.opts.Documents)
	if err != nil {
		s.writeRunError(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHeap(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.runner.Heap(r.Context(), s.opts.Heap)
	if err != nil {
		s.writeRunError(w, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, cmp)
}

// handleHistory serves archived series matching the label selectors
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("result archive is disabled"))
		return
	}

	q := r.URL.Query()
	found, err := s.opts.Archive.Query(r.Context(), storage.SeriesQuery{
		Axis:    q.Get("axis"),
		Variant: q.Get("variant"),
		Metric:  q.Get("metric"),
		RunID:   q.Get("run"),
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}
	if found == nil {
		found = []storage.StoredSeries{}
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("result archive is disabled"))
		return
	}

	runs, err := s.opts.Archive.Runs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("listing runs failed: %w", err))
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "healthy",
		"archive": s.opts.Archive != nil,
	}
	if s.opts.Archive != nil {
		body["archived_series"] = s.opts.Archive.SeriesCount()
	}
	if s.opts.Cache != nil {
		body["cache"] = s.opts.Cache.Stats()
	}
	s.writeJSON(w, http.StatusOK, body)
}

// writeRunError maps pipeline errors onto HTTP statuses. A partial axis
// result is returned alongside the error.
func (s *Server) writeRunError(w http.ResponseWriter, err error, partial *types.AxisResult) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrDuplicateKey),
		errors.Is(err, types.ErrMalformedInput),
		errors.Is(err, types.ErrMissingField):
		status = http.StatusUnprocessableEntity
	}

	body := map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
	if partial != nil {
		body["result"] = partial
	}
	s.writeJSON(w, status, body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}
