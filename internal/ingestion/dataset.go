package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"safety-analytics/internal/models"
)

// CellSize is the edge of a feature grid cell in degrees.
const CellSize = 0.01

// RawData carries fetched, unparsed source files between the fetch stages.
type RawData struct {
	Crime []byte
	Geo   []byte
}

// CrimeRecord is one geocoded incident.
type CrimeRecord struct {
	Lat, Lon float64
	Category string
}

// MapFeature is one point of interest from the geospatial base layer.
type MapFeature struct {
	Lat, Lon float64
	Kind     string
}

// UnifiedDataset is the parsed, validated union of both sources.
type UnifiedDataset struct {
	Crimes   []CrimeRecord
	Features []MapFeature
	Dropped  int
}

// FeatureSet is the modelling input produced by feature engineering.
type FeatureSet struct {
	Cells   []models.CellFeature
	Dropped int
}

// SaveReport is the result of a completed ingestion run.
type SaveReport struct {
	RunID       string `json:"run_id"`
	Cells       int    `json:"cells"`
	RowsWritten int64  `json:"rows_written"`
	RowsDropped int    `json:"rows_dropped"`
}

// ErrNoCrimeRecords is returned when the crime source has no usable rows.
var ErrNoCrimeRecords = errors.New("no usable crime records")

// row is a parsed lat,lon,label triple.
type row struct {
	lat, lon float64
	label    string
}

// parseRows reads lat,lon,label CSV. A non-numeric first row is treated as a header.
// Malformed or out-of-range rows are counted and skipped.
func parseRows(data []byte) ([]row, int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []row
	dropped := 0
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				dropped++
				continue
			}
			return nil, 0, fmt.Errorf("read csv: %w", err)
		}
		parsed, ok := parseRow(rec)
		header := first && !ok && isHeader(rec)
		first = false
		switch {
		case header:
		case !ok:
			dropped++
		default:
			out = append(out, parsed)
		}
	}
	return out, dropped, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(rec[0], 64)
	return err != nil
}

func parseRow(rec []string) (row, bool) {
	if len(rec) < 3 {
		return row{}, false
	}
	lat, err := strconv.ParseFloat(rec[0], 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return row{}, false
	}
	lon, err := strconv.ParseFloat(rec[1], 64)
	if err != nil || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return row{}, false
	}
	label := strings.ToLower(strings.TrimSpace(rec[2]))
	if label == "" {
		return row{}, false
	}
	return row{lat: lat, lon: lon, label: label}, true
}

// Unify parses both sources into a single dataset.
func Unify(raw RawData) (UnifiedDataset, error) {
	crimes, droppedCrime, err := parseRows(raw.Crime)
	if err != nil {
		return UnifiedDataset{}, fmt.Errorf("parse crime data: %w", err)
	}
	if len(crimes) == 0 {
		return UnifiedDataset{}, ErrNoCrimeRecords
	}
	features, droppedGeo, err := parseRows(raw.Geo)
	if err != nil {
		return UnifiedDataset{}, fmt.Errorf("parse geospatial data: %w", err)
	}

	ds := UnifiedDataset{
		Crimes:   make([]CrimeRecord, 0, len(crimes)),
		Features: make([]MapFeature, 0, len(features)),
		Dropped:  droppedCrime + droppedGeo,
	}
	for _, c := range crimes {
		ds.Crimes = append(ds.Crimes, CrimeRecord{Lat: c.lat, Lon: c.lon, Category: c.label})
	}
	for _, f := range features {
		ds.Features = append(ds.Features, MapFeature{Lat: f.lat, Lon: f.lon, Kind: f.label})
	}
	return ds, nil
}

type cellKey struct{ lat, lon int64 }

func keyFor(lat, lon float64) cellKey {
	return cellKey{lat: int64(math.Floor(lat / CellSize)), lon: int64(math.Floor(lon / CellSize))}
}

// Engineer aggregates the dataset onto the CellSize grid, sorted south-west to north-east.
func Engineer(ds UnifiedDataset) FeatureSet {
	cells := make(map[cellKey]*models.CellFeature)
	get := func(lat, lon float64) *models.CellFeature {
		k := keyFor(lat, lon)
		c, ok := cells[k]
		if !ok {
			c = &models.CellFeature{
				CellLat:     round(float64(k.lat)*CellSize, 4),
				CellLon:     round(float64(k.lon)*CellSize, 4),
				CrimeByType: map[string]int{},
			}
			cells[k] = c
		}
		return c
	}

	for _, cr := range ds.Crimes {
		c := get(cr.Lat, cr.Lon)
		c.CrimeCount++
		c.CrimeByType[cr.Category]++
	}
	for _, f := range ds.Features {
		c := get(f.Lat, f.Lon)
		switch f.Kind {
		case "streetlight":
			c.Streetlights++
		case "police_station":
			c.PoliceStations++
		default:
			c.OtherFeatures++
		}
	}

	out := FeatureSet{Cells: make([]models.CellFeature, 0, len(cells)), Dropped: ds.Dropped}
	for _, c := range cells {
		c.RiskIndex = round(float64(c.CrimeCount)/float64(1+c.Streetlights+2*c.PoliceStations), 4)
		out.Cells = append(out.Cells, *c)
	}
	sort.Slice(out.Cells, func(i, j int) bool {
		if out.Cells[i].CellLat != out.Cells[j].CellLat {
			return out.Cells[i].CellLat < out.Cells[j].CellLat
		}
		return out.Cells[i].CellLon < out.Cells[j].CellLon
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
