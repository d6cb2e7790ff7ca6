package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrObjectNotFound is returned by sources that do not hold the requested key.
var ErrObjectNotFound = errors.New("source object not found")

// Source fetches raw input files by key.
type Source interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// MemorySource serves fixed objects from memory.
type MemorySource struct {
	objects map[string][]byte
}

// NewMemorySource copies objects into a new source.
func NewMemorySource(objects map[string][]byte) *MemorySource {
	m := make(map[string][]byte, len(objects))
	for k, v := range objects {
		m[k] = bytes.Clone(v)
	}
	return &MemorySource{objects: m}
}

// Fetch returns a copy of the object stored under key.
func (s *MemorySource) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return bytes.Clone(b), nil
}

var (
	simulatedCrimeTypes   = []string{"theft", "pickpocketing", "harassment", "assault", "fraud"}
	simulatedFeatureKinds = []string{"streetlight", "streetlight", "streetlight", "police_station", "hospital", "atm"}
)

// NewSimulatedSource returns a MemorySource holding a reproducible crime file under crimeKey and a
// map-features file under geoKey, scattered around (lat, lon).
func NewSimulatedSource(crimeKey, geoKey string, lat, lon float64) *MemorySource {
	rnd := rand.New(rand.NewPCG(2024, 11))
	spread := func(center float64) float64 {
		return center + (rnd.Float64()-0.5)*0.08
	}

	var crime bytes.Buffer
	crime.WriteString("latitude,longitude,category\n")
	for i := 0; i < 240; i++ {
		fmt.Fprintf(&crime, "%.5f,%.5f,%s\n", spread(lat), spread(lon), simulatedCrimeTypes[rnd.IntN(len(simulatedCrimeTypes))])
	}

	var geo bytes.Buffer
	geo.WriteString("latitude,longitude,feature\n")
	for i := 0; i < 160; i++ {
		fmt.Fprintf(&geo, "%.5f,%.5f,%s\n", spread(lat), spread(lon), simulatedFeatureKinds[rnd.IntN(len(simulatedFeatureKinds))])
	}

	return &MemorySource{objects: map[string][]byte{
		crimeKey: crime.Bytes(),
		geoKey:   geo.Bytes(),
	}}
}
