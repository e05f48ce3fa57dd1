// Package api serves the outputs of the last pipeline run over a
// read-only HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/observability"
	"github.com/yatuk/SOC-case-study-project/internal/pipeline"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/ingestion"
)

// Event listing bounds
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 1000
)

// requiredOutputs must all exist before the server reports ready
var requiredOutputs = []string{
	ingestion.EventsFile,
	ingestion.ProfileFile,
	pipeline.CorrelationsFile,
	pipeline.RiskScoresFile,
	pipeline.AlertsFile,
}

// Options configures the server
type Options struct {
	OutputDir      string
	Version        string
	RequestTimeout time.Duration
	// Limiter is optional
	Limiter *RateLimiter
}

// Server exposes the files of an output directory
type Server struct {
	opts    Options
	metrics *observability.Metrics
	logger  *zap.Logger
	router  chi.Router
}

// NewServer creates the router
func NewServer(opts Options, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	s := &Server{opts: opts, metrics: metrics, logger: logger.Named("api")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.opts.Limiter != nil {
			r.Use(s.opts.Limiter.Middleware(func(r *http.Request) string { return r.URL.Path }))
		}
		r.Get("/profile", s.serveFile(ingestion.ProfileFile))
		r.Get("/correlations", s.serveFile(pipeline.CorrelationsFile))
		r.Get("/risk-scores", s.serveFile(pipeline.RiskScoresFile))
		r.Get("/alerts", s.handleAlerts)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// instrument logs every request and records it in the HTTP metrics
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": s.opts.Version})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	missing := []string{}
	for _, name := range requiredOutputs {
		if _, err := os.Stat(s.path(name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "missing": missing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// serveFile streams a JSON document written by the pipeline
func (s *Server) serveFile(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(s.path(name))
		if err != nil {
			s.fileError(w, name, err)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, f); err != nil {
			s.logger.Warn("response truncated", zap.String("file", name), zap.Error(err))
		}
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := ingestion.ReadJSONL[telemetry.Alert](s.path(pipeline.AlertsFile), 0)
	if err != nil {
		s.fileError(w, pipeline.AlertsFile, err)
		return
	}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		floor := telemetry.Level(sev)
		switch floor {
		case telemetry.LevelLow, telemetry.LevelMedium, telemetry.LevelHigh, telemetry.LevelCritical:
		default:
			writeError(w, http.StatusBadRequest, "unknown severity "+strconv.Quote(sev))
			return
		}
		filtered := alerts[:0]
		for _, a := range alerts {
			if a.Severity.AtLeast(floor) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxEventLimit)
	}
	events, err := ingestion.ReadJSONL[telemetry.Event](s.path(ingestion.EventsFile), limit)
	if err != nil {
		s.fileError(w, ingestion.EventsFile, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events), "limit": limit})
}

func (s *Server) path(name string) string {
	return filepath.Join(s.opts.OutputDir, name)
}

func (s *Server) fileError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, name+" has not been produced yet")
		return
	}
	s.logger.Error("reading output failed", zap.String("file", name), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to read "+name)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
