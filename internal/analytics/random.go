package analytics

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Random is a mutex-guarded PRNG shared by the mock models. A fixed seed makes output reproducible.
type Random struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom seeds a generator; seed 0 picks a time-based seed.
func NewRandom(seed uint64) *Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Random{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uniform returns a value in [lo, hi).
func (r *Random) Uniform(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.r.Float64()*(hi-lo)
}

// IntRange returns a value in [lo, hi].
func (r *Random) IntRange(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.r.IntN(hi-lo+1)
}

// Choice picks one of opts.
func (r *Random) Choice(opts ...string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return opts[r.r.IntN(len(opts))]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
