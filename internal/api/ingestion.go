package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"safety-analytics/internal/models"
)

type pipelineTriggerResponse struct {
	JobID     string        `json:"job_id"`
	Status    models.Status `json:"status"`
	Message   string        `json:"message"`
	StatusURL string        `json:"status_url"`
}

type pipelineStatusResponse struct {
	JobID        string        `json:"job_id"`
	Status       models.Status `json:"status"`
	CurrentStage string        `json:"current_stage,omitempty"`
	StageIndex   int           `json:"stage_index"`
	StageCount   int           `json:"stage_count"`
	FailedStage  string        `json:"failed_stage,omitempty"`
	Error        string        `json:"error,omitempty"`
	Result       any           `json:"result,omitempty"`
}

func (s *Server) handleTriggerPipeline(w http.ResponseWriter, r *http.Request) {
	stages := s.ingestion.Stages()
	id, err := s.runner.RunPipeline(models.KindIngestionPipeline, stages, nil)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "ingestion pipeline triggered", "job_id", id, "stages", len(stages))
	writeJSON(w, http.StatusAccepted, pipelineTriggerResponse{
		JobID:     id,
		Status:    models.StatusQueued,
		Message:   "Data ingestion pipeline has been initiated.",
		StatusURL: s.cfg.APIPrefix + "/ingestion/status/" + id,
	})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.Poll(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	if job.Kind != models.KindIngestionPipeline {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, pipelineStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		CurrentStage: job.CurrentStage,
		StageIndex:   job.StageIndex,
		StageCount:   job.StageCount,
		FailedStage:  job.FailedStage,
		Error:        job.Error,
		Result:       job.Result,
	})
}
