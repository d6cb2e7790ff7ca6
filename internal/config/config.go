package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds shared runtime configuration for the API service and the ingest CLI.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ProjectName string `env:"PROJECT_NAME" envDefault:"Tourist Safety AI System"`
	APIPrefix   string `env:"API_PREFIX" envDefault:"/v1"`

	HTTPHost        string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`
	JobQueueSize      int `env:"JOB_QUEUE_SIZE" envDefault:"256"`
	MaxRetainedJobs   int `env:"MAX_RETAINED_JOBS" envDefault:"0"`

	TrailAnalysisDelay time.Duration `env:"TRAIL_ANALYSIS_DELAY" envDefault:"15s"`
	RiskCenterLat      float64       `env:"RISK_CENTER_LAT" envDefault:"13.0827"`
	RiskCenterLon      float64       `env:"RISK_CENTER_LON" envDefault:"80.2707"`

	Ingest IngestConfig

	PostgresDSN string `env:"POSTGRES_DSN"`

	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RateLimitCapacity int           `env:"RATE_LIMIT_CAPACITY" envDefault:"50"`
	RateLimitRefill   float64       `env:"RATE_LIMIT_REFILL_PER_SEC" envDefault:"20"`
	RateLimitTTL      time.Duration `env:"RATE_LIMIT_TTL" envDefault:"1h"`
}

// IngestConfig configures the data ingestion pipeline sources and simulated latency.
type IngestConfig struct {
	LatencyScale float64 `env:"INGEST_LATENCY_SCALE" envDefault:"1"`
	S3Bucket     string  `env:"INGEST_S3_BUCKET"`
	S3Region     string  `env:"INGEST_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint   string  `env:"INGEST_S3_ENDPOINT"`
	S3PathStyle  bool    `env:"INGEST_S3_PATH_STYLE" envDefault:"false"`
	CrimeKey     string  `env:"INGEST_CRIME_KEY" envDefault:"raw/crime.csv"`
	GeoKey       string  `env:"INGEST_GEO_KEY" envDefault:"raw/osm_features.csv"`
	FetchRetries int     `env:"INGEST_FETCH_RETRIES" envDefault:"3"`
}

// Load reads an optional .env file, then environment variables with defaults for local development.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from the environment.
func (c *Config) Sanitize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.APIPrefix = "/" + strings.Trim(strings.TrimSpace(c.APIPrefix), "/")
	if c.APIPrefix == "/" {
		c.APIPrefix = ""
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 4
	}
	if c.JobQueueSize <= 0 {
		c.JobQueueSize = 256
	}
	if c.MaxRetainedJobs < 0 {
		c.MaxRetainedJobs = 0
	}
	if c.TrailAnalysisDelay < 0 {
		c.TrailAnalysisDelay = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.Ingest.LatencyScale < 0 {
		c.Ingest.LatencyScale = 0
	}
	if c.Ingest.FetchRetries < 1 {
		c.Ingest.FetchRetries = 1
	}
	if c.RateLimitCapacity <= 0 {
		c.RateLimitCapacity = 50
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = 20
	}
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return c.HTTPHost + ":" + c.HTTPPort
}

// IsDev reports whether the service runs in local development mode.
func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "development" || c.Env == "local"
}

// RateLimitEnabled reports whether a Redis address was configured for the token bucket.
func (c Config) RateLimitEnabled() bool {
	return c.RedisAddr != ""
}
