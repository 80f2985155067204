package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T, m *JobManager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitJob(t *testing.T, m *JobManager, id string) *models.StageJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id, 5*time.Millisecond)
	require.NoError(t, err)
	return job
}

func TestJobManager_RunsWhenPrerequisitesComplete(t *testing.T) {
	store := newMemJobStore()
	m := NewJobManager(store, 2, 10*time.Millisecond, nil, nil)

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	m.Register("first", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		<-release
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return map[string]any{"value": "from first"}, nil
	})
	m.Register("second", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return nil, nil
	})

	ctx := context.Background()
	firstID, err := m.Submit(ctx, "first", nil)
	require.NoError(t, err)
	secondID, err := m.Submit(ctx, "second", nil, firstID)
	require.NoError(t, err)

	startManager(t, m)

	// second must stay pending while first is running
	time.Sleep(50 * time.Millisecond)
	second, err := m.Get(ctx, secondID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, second.Status)

	close(release)

	first := waitJob(t, m, firstID)
	assert.Equal(t, models.JobStatusCompleted, first.Status)
	assert.Equal(t, "from first", first.Output["value"])

	second = waitJob(t, m, secondID)
	assert.Equal(t, models.JobStatusCompleted, second.Status)
	assert.Equal(t, 1, second.Attempts)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestJobManager_FailedPrerequisiteFailsDependent(t *testing.T) {
	store := newMemJobStore()
	m := NewJobManager(store, 2, 10*time.Millisecond, nil, nil)

	ran := false
	m.Register("broken", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		return nil, errBoom
	})
	m.Register("after", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		ran = true
		return nil, nil
	})

	ctx := context.Background()
	brokenID, err := m.Submit(ctx, "broken", nil)
	require.NoError(t, err)
	afterID, err := m.Submit(ctx, "after", nil, brokenID)
	require.NoError(t, err)

	startManager(t, m)

	broken := waitJob(t, m, brokenID)
	assert.Equal(t, models.JobStatusFailed, broken.Status)
	require.NotNil(t, broken.Error)
	assert.Contains(t, *broken.Error, "boom")

	after := waitJob(t, m, afterID)
	assert.Equal(t, models.JobStatusFailed, after.Status)
	require.NotNil(t, after.Error)
	assert.Contains(t, *after.Error, "dependency "+brokenID+" failed")
	assert.Equal(t, 0, after.Attempts)
	assert.False(t, ran)
}

func TestJobManager_MissingPrerequisiteFails(t *testing.T) {
	m := NewJobManager(newMemJobStore(), 1, 10*time.Millisecond, nil, nil)
	m.Register("noop", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		return nil, nil
	})

	id, err := m.Submit(context.Background(), "noop", nil, "does-not-exist")
	require.NoError(t, err)
	startManager(t, m)

	job := waitJob(t, m, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestJobManager_UnknownMethod(t *testing.T) {
	m := NewJobManager(newMemJobStore(), 1, 10*time.Millisecond, nil, nil)

	id, err := m.Submit(context.Background(), "nobody_handles_this", nil)
	require.NoError(t, err)
	startManager(t, m)

	job := waitJob(t, m, id)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, ErrUnknownMethod.Error())
}

func TestJobManager_PanicFailsJob(t *testing.T) {
	collector := metrics.NewCollector()
	m := NewJobManager(newMemJobStore(), 1, 10*time.Millisecond, nil, collector)
	m.Register("explode", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		panic("kaboom")
	})
	m.Register("fine", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	ctx := context.Background()
	explodeID, err := m.Submit(ctx, "explode", nil)
	require.NoError(t, err)
	fineID, err := m.Submit(ctx, "fine", nil)
	require.NoError(t, err)
	startManager(t, m)

	job := waitJob(t, m, explodeID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "kaboom")

	// The worker slot is released after a panic.
	assert.Equal(t, models.JobStatusCompleted, waitJob(t, m, fineID).Status)
	assert.Eventually(t, func() bool {
		snap := collector.Snapshot().StageJob
		return snap != nil && snap.Count == 2
	}, time.Second, 5*time.Millisecond)
}

func TestJobManager_ArgsReachHandler(t *testing.T) {
	m := NewJobManager(newMemJobStore(), 1, 10*time.Millisecond, nil, nil)
	m.Register("echo", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		return map[string]any{"echo": job.ArgString("msg")}, nil
	})

	id, err := m.Submit(context.Background(), "echo", map[string]any{"msg": "hello"})
	require.NoError(t, err)
	startManager(t, m)

	assert.Equal(t, "hello", waitJob(t, m, id).Output["echo"])
}

func TestJobManager_RecoverResumesRunningJobs(t *testing.T) {
	store := newMemJobStore()
	ctx := context.Background()

	// Simulate a job claimed by a process that then died.
	_, err := store.CreateStageJob(ctx, "orphan", "work", nil, nil)
	require.NoError(t, err)
	claimed, err := store.ClaimStageJob(ctx, "orphan")
	require.NoError(t, err)
	require.True(t, claimed)

	m := NewJobManager(store, 1, 10*time.Millisecond, nil, nil)
	m.Register("work", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		return map[string]any{"resumed": true}, nil
	})
	require.NoError(t, m.Recover(ctx))

	job, err := m.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	startManager(t, m)
	job = waitJob(t, m, "orphan")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestJobManager_ConcurrencyLimit(t *testing.T) {
	m := NewJobManager(newMemJobStore(), 2, 10*time.Millisecond, nil, nil)

	var mu sync.Mutex
	running, peak := 0, 0
	m.Register("slow", func(ctx context.Context, job *models.StageJob) (map[string]any, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	})

	ctx := context.Background()
	var ids []string
	for range 6 {
		id, err := m.Submit(ctx, "slow", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	startManager(t, m)

	for _, id := range ids {
		assert.Equal(t, models.JobStatusCompleted, waitJob(t, m, id).Status)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestJobManager_ListNewestFirst(t *testing.T) {
	m := NewJobManager(newMemJobStore(), 1, time.Second, nil, nil)
	ctx := context.Background()

	a, err := m.Submit(ctx, "a", nil)
	require.NoError(t, err)
	b, err := m.Submit(ctx, "b", nil)
	require.NoError(t, err)

	jobs, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, b, models.MustRecordIDString(jobs[0].ID))
	assert.Equal(t, a, models.MustRecordIDString(jobs[1].ID))
}
