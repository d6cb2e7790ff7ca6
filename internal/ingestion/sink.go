package ingestion

import (
	"context"
	"log/slog"

	"safety-analytics/internal/models"
)

// Sink persists engineered features for a run and reports how many rows were written.
type Sink interface {
	SaveFeatures(ctx context.Context, runID string, cells []models.CellFeature) (int64, error)
}

// LogSink discards features after logging a summary. Used when no database is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) SaveFeatures(ctx context.Context, runID string, cells []models.CellFeature) (int64, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	crimes := 0
	for _, c := range cells {
		crimes += c.CrimeCount
	}
	logger.InfoContext(ctx, "feature set not persisted, no database configured", "run_id", runID, "cells", len(cells), "crimes", crimes)
	return int64(len(cells)), nil
}
