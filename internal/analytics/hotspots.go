package analytics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const hotspotMargin = 0.005

// ErrInvalidBBox is returned by ParseBBox.
var ErrInvalidBBox = errors.New("invalid bbox")

// BBox is a lon/lat bounding box.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// ParseBBox parses "min_lon,min_lat,max_lon,max_lat".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: want 4 comma separated numbers, got %d", ErrInvalidBBox, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return BBox{}, fmt.Errorf("%w: %q is not a finite number", ErrInvalidBBox, p)
		}
		v[i] = f
	}
	b := BBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	switch {
	case b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90:
		return BBox{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidBBox)
	case b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat:
		return BBox{}, fmt.Errorf("%w: min must be below max", ErrInvalidBBox)
	}
	return b, nil
}

// Contains reports whether lon/lat lies inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// HotspotQuery selects the area, window and crime type for a forecast.
type HotspotQuery struct {
	BBox      BBox
	Start     time.Time
	End       time.Time
	CrimeType string
}

// FeatureCollection is a GeoJSON FeatureCollection of hotspot polygons.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string            `json:"type"`
	Geometry   Polygon           `json:"geometry"`
	Properties HotspotProperties `json:"properties"`
}

type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type HotspotProperties struct {
	PredictedRiskLevel float64    `json:"predicted_risk_level"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	CrimeType          string     `json:"crime_type"`
	ValidFrom          time.Time  `json:"valid_from"`
	ValidTo            time.Time  `json:"valid_to"`
}

// HotspotGenerator produces forecast hotspots as small closed triangles inside the query box.
type HotspotGenerator struct {
	rnd *Random
}

func NewHotspotGenerator(rnd *Random) *HotspotGenerator {
	if rnd == nil {
		rnd = NewRandom(0)
	}
	return &HotspotGenerator{rnd: rnd}
}

// Generate returns between two and five hotspots.
func (g *HotspotGenerator) Generate(q HotspotQuery) FeatureCollection {
	n := g.rnd.IntRange(2, 5)
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, n)}
	for i := 0; i < n; i++ {
		lon := g.rnd.Uniform(q.BBox.MinLon, anchorMax(q.BBox.MinLon, q.BBox.MaxLon))
		lat := g.rnd.Uniform(q.BBox.MinLat, anchorMax(q.BBox.MinLat, q.BBox.MaxLat))
		risk := g.rnd.Uniform(5.0, 9.5)
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Polygon{
				Type: "Polygon",
				Coordinates: [][][2]float64{{
					{lon, lat},
					{lon + 0.002, lat + 0.001},
					{lon + 0.001, lat + 0.003},
					{lon, lat},
				}},
			},
			Properties: HotspotProperties{
				PredictedRiskLevel: round(risk, 2),
				ConfidenceInterval: [2]float64{round(risk-1.5, 2), round(risk+1.5, 2)},
				CrimeType:          q.CrimeType,
				ValidFrom:          q.Start,
				ValidTo:            q.End,
			},
		})
	}
	return fc
}

// anchorMax keeps the triangle inside the box when it is wide enough to fit one.
func anchorMax(lo, hi float64) float64 {
	if hi-lo > hotspotMargin {
		return hi - hotspotMargin
	}
	return lo
}
