// Package jobs owns the in-process job table: identifier allocation, lifecycle
// transitions and consistent snapshots for pollers.
package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"safety-analytics/internal/models"
)

const missingCause = "job failed without a reported cause"

// Update describes a transition requested through Registry.Update.
type Update struct {
	Status models.Status
	Result any
	Err    error

	// Stage progress, used by pipeline runs while running.
	Stage      string
	StageIndex int
	StageCount int

	// FailedStage names the pipeline stage that caused a failure.
	FailedStage string
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status models.Status
	Kind   models.Kind
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxRetained bounds how many terminal jobs are kept; the oldest by completion are evicted first.
// Zero keeps every job for the lifetime of the registry.
func WithMaxRetained(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxRetained = n
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry is a concurrency-safe job table. Callers only ever receive copies of records.
type Registry struct {
	mu          sync.RWMutex
	jobs        map[string]*models.Job
	finished    []string // terminal ids in completion order
	maxRetained int
	now         func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new job in the queued state and returns its id.
func (r *Registry) Create(kind models.Kind) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	for r.jobs[id] != nil {
		id = uuid.NewString()
	}
	r.jobs[id] = &models.Job{
		ID:        id,
		Kind:      kind,
		Status:    models.StatusQueued,
		CreatedAt: r.now().UTC(),
	}
	return id
}

// Update applies a transition to an existing job.
func (r *Registry) Update(id string, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err := checkTransition(job.Status, u.Status); err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}

	now := r.now().UTC()
	switch u.Status {
	case models.StatusRunning:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		if u.Stage != "" {
			job.CurrentStage = u.Stage
			job.StageIndex = u.StageIndex
		}
		if u.StageCount > 0 {
			job.StageCount = u.StageCount
		}
	case models.StatusCompleted:
		job.Result = u.Result
		if job.Result == nil {
			job.Result = models.CompletionMarker{Completed: true}
		}
	case models.StatusFailed:
		job.Error = missingCause
		if u.Err != nil && u.Err.Error() != "" {
			job.Error = u.Err.Error()
		}
		job.FailedStage = u.FailedStage
	}
	job.Status = u.Status

	if u.Status.IsTerminal() {
		job.CompletedAt = &now
		r.finished = append(r.finished, id)
		r.evictLocked()
	}
	return nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return snapshot(job), nil
}

// List returns snapshots matching f, oldest first.
func (r *Registry) List(f Filter) []models.Job {
	r.mu.RLock()
	out := make([]models.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.Kind != "" && job.Kind != f.Kind {
			continue
		}
		out = append(out, snapshot(job))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of retained jobs per status.
func (r *Registry) Counts() map[models.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[models.Status]int{
		models.StatusQueued:    0,
		models.StatusRunning:   0,
		models.StatusCompleted: 0,
		models.StatusFailed:    0,
	}
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts
}

func (r *Registry) evictLocked() {
	if r.maxRetained <= 0 {
		return
	}
	for len(r.finished) > r.maxRetained {
		delete(r.jobs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

func checkTransition(from, to models.Status) error {
	switch {
	case !to.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	case from.IsTerminal():
		return fmt.Errorf("%w: job already %s", ErrInvalidTransition, from)
	case to.Rank() < from.Rank():
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	case from == models.StatusQueued && to == models.StatusQueued:
		return fmt.Errorf("%w: job already queued", ErrInvalidTransition)
	case from == models.StatusQueued && to == models.StatusCompleted:
		return fmt.Errorf("%w: %s -> %s skips running", ErrInvalidTransition, from, to)
	}
	return nil
}

func snapshot(job *models.Job) models.Job {
	cp := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		cp.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
