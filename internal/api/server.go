// Package api serves the safety analytics HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"safety-analytics/internal/analytics"
	"safety-analytics/internal/config"
	"safety-analytics/internal/jobs"
	"safety-analytics/internal/ratelimit"
	"safety-analytics/internal/telemetry"
	"safety-analytics/internal/worker"
)

const maxBodyBytes = 1 << 20

// StagePlanner supplies the stages of one ingestion run.
type StagePlanner interface {
	Stages() []worker.Stage
}

// Deps are the collaborators behind the handlers. Limiter may be nil.
type Deps struct {
	Runner    *worker.Runner
	Scorer    *analytics.Scorer
	Analyzer  *analytics.Analyzer
	Hotspots  *analytics.HotspotGenerator
	Ingestion StagePlanner
	Limiter   *ratelimit.TokenBucket
	Logger    *slog.Logger
}

// Server wires HTTP handlers for the public API.
type Server struct {
	cfg       config.Config
	runner    *worker.Runner
	scorer    *analytics.Scorer
	analyzer  *analytics.Analyzer
	hotspots  *analytics.HotspotGenerator
	ingestion StagePlanner
	limiter   *ratelimit.TokenBucket
	logger    *slog.Logger
	validate  *validator.Validate
}

// New constructs the API server.
func New(cfg config.Config, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		cfg:       cfg,
		runner:    d.Runner,
		scorer:    d.Scorer,
		analyzer:  d.Analyzer,
		hotspots:  d.Hotspots,
		ingestion: d.Ingestion,
		limiter:   d.Limiter,
		logger:    logger,
		validate:  v,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())

	routes := func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimit.Middleware(s.limiter, ratelimit.ClientIP, s.logger))
		}
		r.Post("/risk-score/location", s.handleRiskScore)
		r.Post("/risk-score/batch", s.handleRiskBatch)

		r.Post("/gps-trail/analyze", s.handleAnalyzeTrail)
		r.Post("/jobs/analyze-trail-async", s.handleAnalyzeTrailAsync)
		r.Get("/jobs/status/{id}", s.handleJobStatus)
		r.Get("/jobs", s.handleListJobs)

		r.Post("/ingestion/trigger-pipeline", s.handleTriggerPipeline)
		r.Get("/ingestion/status/{id}", s.handlePipelineStatus)

		r.Get("/predictive-hotspots", s.handleHotspots)
	}
	if s.cfg.APIPrefix == "" {
		r.Group(routes)
	} else {
		r.Route(s.cfg.APIPrefix, routes)
	}
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":       fmt.Sprintf("Welcome to the %s API", s.cfg.ProjectName),
		"documentation": s.cfg.APIPrefix + "/",
		"project":       s.cfg.ProjectName,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// decode reads a JSON body into dst and validates it. On failure the response is written
// and false returned.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return s.check(w, dst)
}

func (s *Server) check(w http.ResponseWriter, v any) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fieldPath(fe.Namespace())] = describe(fe)
	}
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Details: details})
	return false
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gtfield":
		return "must be later than " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// writeJobError maps runner and registry errors to HTTP status codes.
func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrRunnerStopped):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("job request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
