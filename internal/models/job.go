package models

import (
	"time"
)

// Status enumerates the lifecycle states of a tracked job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders statuses along the lifecycle. Unknown statuses rank below queued.
func (s Status) Rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

// Kind labels what a job runs; used for metrics and listing filters.
type Kind string

const (
	KindTrailAnalysis     Kind = "trail_analysis"
	KindIngestionPipeline Kind = "ingestion_pipeline"
)

// Job is a point-in-time snapshot of a tracked job. Pipeline jobs also fill the stage fields.
type Job struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind"`
	Status       Status     `json:"status"`
	Result       any        `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	CurrentStage string     `json:"current_stage,omitempty"`
	StageIndex   int        `json:"stage_index,omitempty"`
	StageCount   int        `json:"stage_count,omitempty"`
	FailedStage  string     `json:"failed_stage,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CompletionMarker is stored as the result of a job whose task finished without output.
type CompletionMarker struct {
	Completed bool `json:"completed"`
}
