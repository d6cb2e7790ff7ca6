package api

import (
	"net/http"

	"safety-analytics/internal/analytics"
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (l locationRequest) location() analytics.Location {
	return analytics.Location{Latitude: *l.Latitude, Longitude: *l.Longitude}
}

type batchLocationRequest struct {
	Locations []locationRequest `json:"locations" validate:"required,min=1,dive"`
}

type batchRiskResponse struct {
	Scores []analytics.RiskScore `json:"scores"`
}

func (s *Server) handleRiskScore(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Score(req.location()))
}

func (s *Server) handleRiskBatch(w http.ResponseWriter, r *http.Request) {
	var req batchLocationRequest
	if !s.decode(w, r, &req) {
		return
	}
	locs := make([]analytics.Location, len(req.Locations))
	for i, l := range req.Locations {
		locs[i] = l.location()
	}
	scores, err := s.scorer.ScoreBatch(r.Context(), locs)
	if err != nil {
		s.logger.WarnContext(r.Context(), "batch scoring aborted", "locations", len(locs), "error", err)
		writeError(w, http.StatusServiceUnavailable, "batch scoring aborted")
		return
	}
	writeJSON(w, http.StatusOK, batchRiskResponse{Scores: scores})
}
