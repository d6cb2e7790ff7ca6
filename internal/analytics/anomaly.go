package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safety-analytics/internal/jobs"
)

// MinTrailPoints is the shortest trail the analyzer accepts.
const MinTrailPoints = 5

// Anomaly types reported by Analyze.
const (
	AnomalyNormal           = "Normal"
	AnomalyImmobility       = "Unusual_Immobility"
	AnomalyImplausibleSpeed = "Implausible_Speed"
)

const (
	immobilityWindow   = 10
	immobilitySpeed    = 0.1
	implausibleSpeedMS = 30.0
)

// ErrTrailTooShort is returned for trails below MinTrailPoints.
var ErrTrailTooShort = errors.New("trail too short")

// GPSPoint is one fix on a tourist's trail. Speed is in metres per second.
type GPSPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
	Speed     float64 `json:"speed"`
}

// Trail is the input to an anomaly analysis.
type Trail struct {
	TouristID string     `json:"tourist_id"`
	Points    []GPSPoint `json:"trail"`
}

// AnomalyResult is the outcome of a trail analysis.
type AnomalyResult struct {
	TouristID    string  `json:"tourist_id"`
	AnomalyScore float64 `json:"anomaly_score"`
	AnomalyType  string  `json:"anomaly_type"`
	IsAlert      bool    `json:"is_alert"`
}

// Analyzer flags trails that stop moving for too long or move implausibly fast.
type Analyzer struct {
	rnd *Random
}

func NewAnalyzer(rnd *Random) *Analyzer {
	if rnd == nil {
		rnd = NewRandom(0)
	}
	return &Analyzer{rnd: rnd}
}

// Analyze classifies a trail. Immobility over the last ten points takes precedence over speed.
func (a *Analyzer) Analyze(t Trail) (AnomalyResult, error) {
	if len(t.Points) < MinTrailPoints {
		return AnomalyResult{}, fmt.Errorf("%w: %d points, need at least %d", ErrTrailTooShort, len(t.Points), MinTrailPoints)
	}

	var score float64
	kind, alert := AnomalyNormal, false
	switch {
	case immobile(t.Points):
		score, kind, alert = a.rnd.Uniform(0.8, 0.98), AnomalyImmobility, true
	case tooFast(t.Points):
		score, kind, alert = a.rnd.Uniform(0.7, 0.9), AnomalyImplausibleSpeed, true
	default:
		score = a.rnd.Uniform(0.01, 0.25)
	}
	return AnomalyResult{
		TouristID:    t.TouristID,
		AnomalyScore: round(score, 4),
		AnomalyType:  kind,
		IsAlert:      alert,
	}, nil
}

// AsyncTask returns a job task that simulates a long-running analysis of delay before analyzing.
func (a *Analyzer) AsyncTask(delay time.Duration) jobs.Task {
	return jobs.TaskOf(func(ctx context.Context, t Trail) (AnomalyResult, error) {
		if err := sleep(ctx, delay); err != nil {
			return AnomalyResult{}, fmt.Errorf("trail analysis interrupted: %w", err)
		}
		return a.Analyze(t)
	})
}

func immobile(points []GPSPoint) bool {
	if len(points) <= immobilityWindow {
		return false
	}
	for _, p := range points[len(points)-immobilityWindow:] {
		if p.Speed >= immobilitySpeed {
			return false
		}
	}
	return true
}

func tooFast(points []GPSPoint) bool {
	for _, p := range points {
		if p.Speed > implausibleSpeedMS {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
