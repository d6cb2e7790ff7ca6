// Package store persists ingestion output to Postgres.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"safety-analytics/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a pooled connection to Postgres and verifies it with a ping.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveFeatures writes one ingestion run and its cells in a single transaction.
// It returns the number of cell rows inserted.
func (s *Store) SaveFeatures(ctx context.Context, runID string, cells []models.CellFeature) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	crimes := 0
	for _, c := range cells {
		crimes += c.CrimeCount
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO ingestion_runs (id, cells, crimes, created_at)
		VALUES ($1, $2, $3, NOW())
	`, runID, len(cells), crimes); err != nil {
		return 0, fmt.Errorf("insert ingestion run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range cells {
		byType, err := json.Marshal(c.CrimeByType)
		if err != nil {
			return 0, fmt.Errorf("marshal crime types: %w", err)
		}
		batch.Queue(`
			INSERT INTO cell_features (run_id, cell_lat, cell_lon, crime_count, crime_by_type, streetlights, police_stations, other_features, risk_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, runID, c.CellLat, c.CellLon, c.CrimeCount, byType, c.Streetlights, c.PoliceStations, c.OtherFeatures, c.RiskIndex)
	}

	var written int64
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert cell %d: %w", i, err)
		}
		written += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.InfoContext(ctx, "feature set saved", "run_id", runID, "cells", written, "crimes", crimes)
	return written, nil
}
