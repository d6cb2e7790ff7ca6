package jobs

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-analytics/internal/models"
)

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()
	id := r.Create(models.KindTrailAnalysis)
	require.NotEmpty(t, id)

	job, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, models.KindTrailAnalysis, job.Kind)
	assert.Nil(t, job.Result)
	assert.Empty(t, job.Error)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestRegistry_CreateConcurrentIDsAreDistinct(t *testing.T) {
	r := NewRegistry()
	const n = 500

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Create("test")
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)

	err = r.Update("does-not-exist", Update{Status: models.StatusRunning})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Lifecycle(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		r := NewRegistry()
		id := r.Create("test")

		require.NoError(t, r.Update(id, Update{Status: models.StatusRunning}))
		job, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRunning, job.Status)
		require.NotNil(t, job.StartedAt)

		require.NoError(t, r.Update(id, Update{Status: models.StatusCompleted, Result: 42}))
		job, err = r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, job.Status)
		assert.Equal(t, 42, job.Result)
		assert.Empty(t, job.Error)
		require.NotNil(t, job.CompletedAt)
	})

	t.Run("failed", func(t *testing.T) {
		r := NewRegistry()
		id := r.Create("test")
		require.NoError(t, r.Update(id, Update{Status: models.StatusRunning}))
		require.NoError(t, r.Update(id, Update{Status: models.StatusFailed, Err: errors.New("boom"), Result: "ignored"}))

		job, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, job.Status)
		assert.Equal(t, "boom", job.Error)
		assert.Nil(t, job.Result)
	})

	t.Run("nil result stores completion marker", func(t *testing.T) {
		r := NewRegistry()
		id := r.Create("test")
		require.NoError(t, r.Update(id, Update{Status: models.StatusRunning}))
		require.NoError(t, r.Update(id, Update{Status: models.StatusCompleted}))

		job, _ := r.Get(id)
		assert.Equal(t, models.CompletionMarker{Completed: true}, job.Result)
	})

	t.Run("failure without cause still has a message", func(t *testing.T) {
		r := NewRegistry()
		id := r.Create("test")
		require.NoError(t, r.Update(id, Update{Status: models.StatusFailed}))

		job, _ := r.Get(id)
		assert.NotEmpty(t, job.Error)
	})
}

func TestRegistry_InvalidTransitions(t *testing.T) {
	cases := []struct {
		name  string
		setup []models.Status
		to    models.Status
	}{
		{"completed to running", []models.Status{models.StatusRunning, models.StatusCompleted}, models.StatusRunning},
		{"completed to failed", []models.Status{models.StatusRunning, models.StatusCompleted}, models.StatusFailed},
		{"completed to completed", []models.Status{models.StatusRunning, models.StatusCompleted}, models.StatusCompleted},
		{"failed to completed", []models.Status{models.StatusFailed}, models.StatusCompleted},
		{"failed to failed", []models.Status{models.StatusRunning, models.StatusFailed}, models.StatusFailed},
		{"running to queued", []models.Status{models.StatusRunning}, models.StatusQueued},
		{"queued to queued", nil, models.StatusQueued},
		{"queued to completed", nil, models.StatusCompleted},
		{"unknown status", nil, models.Status("paused")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			id := r.Create("test")
			for _, st := range tc.setup {
				require.NoError(t, r.Update(id, Update{Status: st, Err: errors.New("x")}))
			}
			before, _ := r.Get(id)

			err := r.Update(id, Update{Status: tc.to, Err: errors.New("late")})
			require.ErrorIs(t, err, ErrInvalidTransition)

			after, _ := r.Get(id)
			assert.Equal(t, before, after)
		})
	}
}

func TestRegistry_StageProgress(t *testing.T) {
	r := NewRegistry()
	id := r.Create(models.KindIngestionPipeline)

	require.NoError(t, r.Update(id, Update{Status: models.StatusRunning, Stage: "a", StageIndex: 1, StageCount: 2}))
	first, _ := r.Get(id)
	require.NoError(t, r.Update(id, Update{Status: models.StatusRunning, Stage: "b", StageIndex: 2}))
	job, _ := r.Get(id)

	assert.Equal(t, "b", job.CurrentStage)
	assert.Equal(t, 2, job.StageIndex)
	assert.Equal(t, 2, job.StageCount)
	assert.Equal(t, *first.StartedAt, *job.StartedAt)
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	id := r.Create("test")
	require.NoError(t, r.Update(id, Update{Status: models.StatusRunning}))

	job, _ := r.Get(id)
	job.Status = models.StatusCompleted
	*job.StartedAt = time.Time{}

	again, _ := r.Get(id)
	assert.Equal(t, models.StatusRunning, again.Status)
	assert.False(t, again.StartedAt.IsZero())
}

func TestRegistry_MaxRetained(t *testing.T) {
	r := NewRegistry(WithMaxRetained(2))

	finish := func(id string) {
		require.NoError(t, r.Update(id, Update{Status: models.StatusRunning}))
		require.NoError(t, r.Update(id, Update{Status: models.StatusCompleted, Result: id}))
	}

	pending := r.Create("test")
	a, b, c := r.Create("test"), r.Create("test"), r.Create("test")
	finish(a)
	finish(b)
	finish(c)

	_, err := r.Get(a)
	require.ErrorIs(t, err, ErrNotFound)
	for _, id := range []string{b, c, pending} {
		_, err := r.Get(id)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, r.Counts()[models.StatusQueued])
	assert.Equal(t, 2, r.Counts()[models.StatusCompleted])
}

func TestRegistry_ListFilters(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r := NewRegistry(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	first := r.Create(models.KindTrailAnalysis)
	second := r.Create(models.KindIngestionPipeline)
	third := r.Create(models.KindTrailAnalysis)
	require.NoError(t, r.Update(third, Update{Status: models.StatusRunning}))

	all := r.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{first, second, third}, []string{all[0].ID, all[1].ID, all[2].ID})

	trails := r.List(Filter{Kind: models.KindTrailAnalysis})
	assert.Len(t, trails, 2)

	running := r.List(Filter{Status: models.StatusRunning})
	require.Len(t, running, 1)
	assert.Equal(t, third, running[0].ID)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := r.Create("test")
			_ = r.Update(id, Update{Status: models.StatusRunning})
			_, _ = r.Get(id)
			_ = r.List(Filter{})
			_ = r.Update(id, Update{Status: models.StatusCompleted, Result: i})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, r.Counts()[models.StatusCompleted])
}
