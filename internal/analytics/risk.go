// Package analytics holds the scoring, anomaly and hotspot models served by the API.
// They are placeholders with realistic output shapes rather than trained models.
package analytics

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

const batchParallelism = 8

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RiskScore is the safety score for a single location on a 0 (safe) to 10 scale.
type RiskScore struct {
	Latitude            float64           `json:"latitude"`
	Longitude           float64           `json:"longitude"`
	RiskScore           float64           `json:"risk_score"`
	Confidence          float64           `json:"confidence"`
	ContributingFactors map[string]string `json:"contributing_factors"`
}

// Scorer derives a risk score from the distance to a reference hotspot.
type Scorer struct {
	centerLat float64
	centerLon float64
	rnd       *Random
}

// NewScorer returns a scorer centred on (lat, lon).
func NewScorer(lat, lon float64, rnd *Random) *Scorer {
	if rnd == nil {
		rnd = NewRandom(0)
	}
	return &Scorer{centerLat: lat, centerLon: lon, rnd: rnd}
}

// Score rates one location. Risk decays linearly with Manhattan distance from the centre, plus noise.
func (s *Scorer) Score(loc Location) RiskScore {
	distance := (math.Abs(loc.Latitude-s.centerLat) + math.Abs(loc.Longitude-s.centerLon)) * 10
	score := math.Min(10, math.Max(0, 10-distance+s.rnd.Uniform(-1, 1)))
	return RiskScore{
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		RiskScore:  round(score, 2),
		Confidence: round(s.rnd.Uniform(0.85, 0.99), 2),
		ContributingFactors: map[string]string{
			"crime_density": s.rnd.Choice("low", "medium", "high"),
			"lighting":      s.rnd.Choice("good", "poor"),
		},
	}
}

// ScoreBatch scores every location, preserving input order.
func (s *Scorer) ScoreBatch(ctx context.Context, locs []Location) ([]RiskScore, error) {
	out := make([]RiskScore, len(locs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchParallelism)
	for i, loc := range locs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.Score(loc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
