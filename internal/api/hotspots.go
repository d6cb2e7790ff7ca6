package api

import (
	"net/http"
	"time"

	"safety-analytics/internal/analytics"
)

type hotspotParams struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	CrimeType string    `json:"crime_type" validate:"required"`
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var p hotspotParams
	details := map[string]string{}
	for name, dst := range map[string]*time.Time{"start_time": &p.StartTime, "end_time": &p.EndTime} {
		raw := q.Get(name)
		if raw == "" {
			details[name] = "is required"
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			details[name] = "must be an RFC3339 timestamp"
			continue
		}
		*dst = t
	}
	bbox, err := analytics.ParseBBox(q.Get("bbox"))
	if err != nil {
		details["bbox"] = err.Error()
	}
	if len(details) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Details: details})
		return
	}

	p.CrimeType = q.Get("crime_type")
	if !s.check(w, &p) {
		return
	}
	writeJSON(w, http.StatusOK, s.hotspots.Generate(analytics.HotspotQuery{
		BBox:      bbox,
		Start:     p.StartTime,
		End:       p.EndTime,
		CrimeType: p.CrimeType,
	}))
}
