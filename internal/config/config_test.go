package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "/v1", cfg.APIPrefix)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, 15*time.Second, cfg.TrailAnalysisDelay)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.InDelta(t, 13.0827, cfg.RiskCenterLat, 1e-9)
	assert.Equal(t, "raw/crime.csv", cfg.Ingest.CrimeKey)
	assert.Equal(t, 1.0, cfg.Ingest.LatencyScale)
	assert.False(t, cfg.RateLimitEnabled())
	assert.True(t, cfg.IsDev())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "Production")
	t.Setenv("API_PREFIX", "api/v2/")
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("TRAIL_ANALYSIS_DELAY", "250ms")
	t.Setenv("INGEST_LATENCY_SCALE", "0")
	t.Setenv("INGEST_S3_BUCKET", "raw-data")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "/api/v2", cfg.APIPrefix)
	assert.Equal(t, "9001", cfg.HTTPPort)
	assert.Equal(t, 16, cfg.WorkerConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.TrailAnalysisDelay)
	assert.Zero(t, cfg.Ingest.LatencyScale)
	assert.Equal(t, "raw-data", cfg.Ingest.S3Bucket)
	assert.True(t, cfg.RateLimitEnabled())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORKER_CONCURRENCY", "many")

	_, err := Load()
	require.Error(t, err)
}

func TestSanitize(t *testing.T) {
	cfg := Config{
		APIPrefix:         "/",
		WorkerConcurrency: -1,
		JobQueueSize:      0,
		MaxRetainedJobs:   -5,
		Ingest:            IngestConfig{LatencyScale: -2, FetchRetries: 0},
	}
	cfg.Sanitize()

	assert.Equal(t, "", cfg.APIPrefix)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 256, cfg.JobQueueSize)
	assert.Zero(t, cfg.MaxRetainedJobs)
	assert.Zero(t, cfg.Ingest.LatencyScale)
	assert.Equal(t, 1, cfg.Ingest.FetchRetries)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}
