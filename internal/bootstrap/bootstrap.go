// Package bootstrap connects the optional backing services named in the config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"safety-analytics/internal/config"
	"safety-analytics/internal/ingestion"
	"safety-analytics/internal/store"
)

// Ingestion is a configured pipeline plus the resources it holds open.
type Ingestion struct {
	Pipeline *ingestion.Pipeline
	store    *store.Store
}

// Close releases the database pool, if one was opened.
func (i *Ingestion) Close() {
	if i.store != nil {
		i.store.Close()
	}
}

// NewIngestion picks the pipeline source and sink. An S3 bucket selects S3Source, otherwise
// the simulated source is used; a Postgres DSN selects the database sink, otherwise LogSink.
func NewIngestion(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Ingestion, error) {
	var src ingestion.Source
	if cfg.Ingest.S3Bucket != "" {
		s3src, err := ingestion.NewS3Source(ctx, ingestion.S3Options{
			Bucket:    cfg.Ingest.S3Bucket,
			Region:    cfg.Ingest.S3Region,
			Endpoint:  cfg.Ingest.S3Endpoint,
			PathStyle: cfg.Ingest.S3PathStyle,
			Retries:   cfg.Ingest.FetchRetries,
		})
		if err != nil {
			return nil, err
		}
		src = s3src
		logger.Info("ingestion source: s3", "bucket", cfg.Ingest.S3Bucket, "crime_key", cfg.Ingest.CrimeKey, "geo_key", cfg.Ingest.GeoKey)
	} else {
		src = ingestion.NewSimulatedSource(cfg.Ingest.CrimeKey, cfg.Ingest.GeoKey, cfg.RiskCenterLat, cfg.RiskCenterLon)
		logger.Info("ingestion source: simulated")
	}

	out := &Ingestion{}
	var sink ingestion.Sink = ingestion.LogSink{Logger: logger}
	if cfg.PostgresDSN != "" {
		st, err := store.New(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := st.RunMigrations(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("database connected, feature sink: postgres")
		out.store = st
		sink = st
	} else {
		logger.Warn("POSTGRES_DSN not set, engineered features will only be logged")
	}

	out.Pipeline = ingestion.New(ingestion.Options{
		Source:       src,
		Sink:         sink,
		CrimeKey:     cfg.Ingest.CrimeKey,
		GeoKey:       cfg.Ingest.GeoKey,
		LatencyScale: cfg.Ingest.LatencyScale,
		Logger:       logger,
	})
	return out, nil
}

// ConnectRedis opens and pings the Redis client used by the rate limiter.
func ConnectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return client, nil
}
