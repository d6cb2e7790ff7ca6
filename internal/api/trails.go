package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safety-analytics/internal/analytics"
	"safety-analytics/internal/jobs"
	"safety-analytics/internal/models"
)

type gpsPointRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Timestamp *int64   `json:"timestamp" validate:"required"`
	Speed     *float64 `json:"speed" validate:"required"`
}

type trailRequest struct {
	TouristID string            `json:"tourist_id" validate:"required"`
	Trail     []gpsPointRequest `json:"trail" validate:"required,min=5,dive"`
}

func (t trailRequest) trail() analytics.Trail {
	points := make([]analytics.GPSPoint, len(t.Trail))
	for i, p := range t.Trail {
		points[i] = analytics.GPSPoint{
			Latitude:  *p.Latitude,
			Longitude: *p.Longitude,
			Timestamp: *p.Timestamp,
			Speed:     *p.Speed,
		}
	}
	return analytics.Trail{TouristID: t.TouristID, Points: points}
}

type jobSubmissionResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

type jobStatusResponse struct {
	JobID  string        `json:"job_id"`
	Status models.Status `json:"status"`
	Result any           `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type jobListResponse struct {
	Jobs   []models.Job          `json:"jobs"`
	Counts map[models.Status]int `json:"counts"`
}

func (s *Server) handleAnalyzeTrail(w http.ResponseWriter, r *http.Request) {
	var req trailRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.analyzer.Analyze(req.trail())
	if errors.Is(err, analytics.ErrTrailTooShort) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "trail analysis failed", "tourist_id", req.TouristID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalyzeTrailAsync(w http.ResponseWriter, r *http.Request) {
	var req trailRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.runner.Submit(models.KindTrailAnalysis, s.analyzer.AsyncTask(s.cfg.TrailAnalysisDelay), req.trail())
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "trail analysis submitted", "job_id", id, "tourist_id", req.TouristID)
	writeJSON(w, http.StatusAccepted, jobSubmissionResponse{
		JobID:     id,
		StatusURL: s.cfg.APIPrefix + "/jobs/status/" + id,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.Poll(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Result: job.Result,
		Error:  job.Error,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := jobs.Filter{
		Status: models.Status(q.Get("status")),
		Kind:   models.Kind(q.Get("kind")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "unknown status "+string(f.Status))
		return
	}
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: s.runner.List(f), Counts: s.runner.Counts()})
}
