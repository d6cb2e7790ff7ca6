// Package ingestion builds the staged batch pipeline that turns raw crime reports and map
// layers into per-cell features for the risk models.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"safety-analytics/internal/jobs"
	"safety-analytics/internal/worker"
)

// Stage names, in execution order.
const (
	StageFetchCrime       = "fetch_crime_data"
	StageFetchGeospatial  = "fetch_geospatial_data"
	StageGeocodeAndUnify  = "geocode_and_unify"
	StageEngineerFeatures = "engineer_features"
	StageSaveToDatabase   = "save_to_database"
)

// Simulated per-stage latency of the upstream systems at LatencyScale 1.
var stageLatency = map[string]time.Duration{
	StageFetchCrime:       5 * time.Second,
	StageFetchGeospatial:  3 * time.Second,
	StageGeocodeAndUnify:  10 * time.Second,
	StageEngineerFeatures: 8 * time.Second,
	StageSaveToDatabase:   2 * time.Second,
}

// Options wires a Pipeline.
type Options struct {
	Source       Source
	Sink         Sink
	CrimeKey     string
	GeoKey       string
	LatencyScale float64
	Logger       *slog.Logger
}

// Pipeline produces the ordered stages of one ingestion run.
type Pipeline struct {
	source   Source
	sink     Sink
	crimeKey string
	geoKey   string
	scale    float64
	logger   *slog.Logger
}

func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &Pipeline{
		source:   opts.Source,
		sink:     sink,
		crimeKey: opts.CrimeKey,
		geoKey:   opts.GeoKey,
		scale:    opts.LatencyScale,
		logger:   logger,
	}
}

// Stages returns the five ingestion stages. The final output is a SaveReport.
func (p *Pipeline) Stages() []worker.Stage {
	return []worker.Stage{
		{Name: StageFetchCrime, Run: jobs.TaskOf(p.fetchCrime)},
		{Name: StageFetchGeospatial, Run: jobs.TaskOf(p.fetchGeospatial)},
		{Name: StageGeocodeAndUnify, Run: jobs.TaskOf(p.unify)},
		{Name: StageEngineerFeatures, Run: jobs.TaskOf(p.engineer)},
		{Name: StageSaveToDatabase, Run: jobs.TaskOf(p.save)},
	}
}

func (p *Pipeline) fetchCrime(ctx context.Context, _ any) (RawData, error) {
	if err := p.simulateLatency(ctx, StageFetchCrime); err != nil {
		return RawData{}, err
	}
	b, err := p.source.Fetch(ctx, p.crimeKey)
	if err != nil {
		return RawData{}, fmt.Errorf("fetch crime data: %w", err)
	}
	p.logger.InfoContext(ctx, "crime data fetched", "key", p.crimeKey, "bytes", len(b))
	return RawData{Crime: b}, nil
}

func (p *Pipeline) fetchGeospatial(ctx context.Context, raw RawData) (RawData, error) {
	if err := p.simulateLatency(ctx, StageFetchGeospatial); err != nil {
		return RawData{}, err
	}
	b, err := p.source.Fetch(ctx, p.geoKey)
	if err != nil {
		return RawData{}, fmt.Errorf("fetch geospatial data: %w", err)
	}
	p.logger.InfoContext(ctx, "geospatial data fetched", "key", p.geoKey, "bytes", len(b))
	raw.Geo = b
	return raw, nil
}

func (p *Pipeline) unify(ctx context.Context, raw RawData) (UnifiedDataset, error) {
	if err := p.simulateLatency(ctx, StageGeocodeAndUnify); err != nil {
		return UnifiedDataset{}, err
	}
	ds, err := Unify(raw)
	if err != nil {
		return UnifiedDataset{}, err
	}
	p.logger.InfoContext(ctx, "data unified", "crimes", len(ds.Crimes), "features", len(ds.Features), "dropped", ds.Dropped)
	return ds, nil
}

func (p *Pipeline) engineer(ctx context.Context, ds UnifiedDataset) (FeatureSet, error) {
	if err := p.simulateLatency(ctx, StageEngineerFeatures); err != nil {
		return FeatureSet{}, err
	}
	fs := Engineer(ds)
	p.logger.InfoContext(ctx, "features engineered", "cells", len(fs.Cells))
	return fs, nil
}

func (p *Pipeline) save(ctx context.Context, fs FeatureSet) (SaveReport, error) {
	if err := p.simulateLatency(ctx, StageSaveToDatabase); err != nil {
		return SaveReport{}, err
	}
	runID := uuid.NewString()
	n, err := p.sink.SaveFeatures(ctx, runID, fs.Cells)
	if err != nil {
		return SaveReport{}, fmt.Errorf("save features: %w", err)
	}
	return SaveReport{RunID: runID, Cells: len(fs.Cells), RowsWritten: n, RowsDropped: fs.Dropped}, nil
}

func (p *Pipeline) simulateLatency(ctx context.Context, stage string) error {
	d := time.Duration(float64(stageLatency[stage]) * p.scale)
	return sleep(ctx, d)
}
