// Package service provides the lecture ingestion pipeline, the stage job
// scheduler and conversational question answering.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
)

// Handler runs one stage job and returns its output.
type Handler func(ctx context.Context, job *models.StageJob) (map[string]any, error)

// ErrUnknownMethod is recorded on jobs whose method has no registered handler.
var ErrUnknownMethod = errors.New("no handler registered for method")

// pendingBatch bounds how many pending jobs one dispatch pass inspects.
const pendingBatch = 100

// JobManager schedules persisted stage jobs.
// A job runs once every job it waits on has completed; if any of them failed
// the job fails without running. Failed jobs are not retried.
type JobManager struct {
	store        JobStore
	notifier     Notifier
	metrics      *metrics.Collector
	concurrency  int
	pollInterval time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	slots chan struct{}
	wake  chan struct{}
	wg    sync.WaitGroup
}

// NewJobManager creates a new job manager.
// notifier and collector may be nil.
func NewJobManager(store JobStore, concurrency int, pollInterval time.Duration, notifier Notifier, collector *metrics.Collector) *JobManager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &JobManager{
		store:        store,
		notifier:     notifier,
		metrics:      collector,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		handlers:     make(map[string]Handler),
		inflight:     make(map[string]struct{}),
		slots:        make(chan struct{}, concurrency),
		wake:         make(chan struct{}, 1),
	}
}

// Concurrency returns the configured concurrency level.
func (m *JobManager) Concurrency() int {
	return m.concurrency
}

// Register sets the handler for a job method.
func (m *JobManager) Register(method string, h Handler) {
	m.mu.Lock()
	m.handlers[method] = h
	m.mu.Unlock()
}

func (m *JobManager) handler(method string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[method]
	return h, ok
}

// Submit persists a pending job and returns its ID immediately.
// The job runs after every job in waitOn has completed.
func (m *JobManager) Submit(ctx context.Context, method string, args map[string]any, waitOn ...string) (string, error) {
	id := uuid.New().String()
	if _, err := m.store.CreateStageJob(ctx, id, method, args, waitOn); err != nil {
		return "", fmt.Errorf("submit %s: %w", method, err)
	}
	slog.Info("job submitted", "job_id", id, "method", method, "wait_on", waitOn)
	m.poke()
	return id, nil
}

// Get retrieves a job by ID. Returns nil if not found.
func (m *JobManager) Get(ctx context.Context, id string) (*models.StageJob, error) {
	return m.store.GetStageJob(ctx, id)
}

// List returns the most recent jobs, newest first.
func (m *JobManager) List(ctx context.Context, limit int) ([]models.StageJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.store.ListStageJobs(ctx, limit)
}

// Recover returns jobs left running by a previous process to pending.
// Call once before Run.
func (m *JobManager) Recover(ctx context.Context) error {
	n, err := m.store.ResetRunningStageJobs(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if n > 0 {
		slog.Info("reset interrupted jobs to pending", "count", n)
	} else {
		slog.Info("no interrupted jobs to resume")
	}
	return nil
}

// Run dispatches jobs until ctx is cancelled, then waits for running handlers.
// Jobs interrupted by cancellation stay running and are picked up by Recover.
func (m *JobManager) Run(ctx context.Context) error {
	notifications, err := m.notifier.Subscribe(ctx)
	if err != nil {
		slog.Warn("job notifications unavailable, polling only", "error", err)
		notifications = nil
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	slog.Info("job scheduler started", "concurrency", m.concurrency, "poll_interval", m.pollInterval)
	m.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			slog.Info("job scheduler stopped")
			return nil
		case <-ticker.C:
		case <-m.wake:
		case id, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			slog.Debug("job notification received", "job_id", id)
		}
		m.dispatch(ctx)
	}
}

// poke wakes the scheduler without blocking.
func (m *JobManager) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatch starts every pending job whose prerequisites are satisfied, up to the free worker slots.
func (m *JobManager) dispatch(ctx context.Context) {
	pending, err := m.store.ListPendingStageJobs(ctx, pendingBatch)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("failed to list pending jobs", "error", err)
		}
		return
	}

	for i := range pending {
		job := pending[i]
		id, err := models.RecordIDString(job.ID)
		if err != nil {
			slog.Warn("failed to get job ID", "error", err)
			continue
		}
		if m.isInflight(id) {
			continue
		}

		ready, failedDep, err := m.prerequisites(ctx, job.WaitOn)
		if err != nil {
			slog.Warn("failed to check job prerequisites", "job_id", id, "error", err)
			continue
		}
		if failedDep != "" {
			m.fail(ctx, id, job.Method, fmt.Errorf("dependency %s failed", failedDep))
			continue
		}
		if !ready {
			continue
		}

		// Acquire a worker slot before claiming so a claimed job always runs
		select {
		case m.slots <- struct{}{}:
		default:
			return
		}

		claimed, err := m.store.ClaimStageJob(ctx, id)
		if err != nil || !claimed {
			<-m.slots
			if err != nil {
				slog.Warn("failed to claim job", "job_id", id, "error", err)
			}
			continue
		}

		m.setInflight(id, true)
		m.wg.Add(1)
		go m.execute(ctx, id, job)
	}
}

// prerequisites reports whether all jobs in waitOn completed, or the first that failed.
// A prerequisite that does not exist counts as failed.
func (m *JobManager) prerequisites(ctx context.Context, waitOn []string) (bool, string, error) {
	if len(waitOn) == 0 {
		return true, "", nil
	}
	deps, err := m.store.GetStageJobs(ctx, waitOn)
	if err != nil {
		return false, "", err
	}

	status := make(map[string]models.JobStatus, len(deps))
	for _, d := range deps {
		if id, err := models.RecordIDString(d.ID); err == nil {
			status[id] = d.Status
		}
	}

	ready := true
	for _, id := range waitOn {
		s, ok := status[id]
		switch {
		case !ok, s == models.JobStatusFailed:
			return false, id, nil
		case s != models.JobStatusCompleted:
			ready = false
		}
	}
	return ready, "", nil
}

func (m *JobManager) execute(ctx context.Context, id string, job models.StageJob) {
	defer m.wg.Done()
	defer func() { <-m.slots }()
	defer m.setInflight(id, false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job handler panicked", "job_id", id, "method", job.Method, "panic", r)
			m.fail(ctx, id, job.Method, fmt.Errorf("internal panic: %v", r))
		}
	}()
	defer m.metrics.Track(metrics.OpStageJob)()

	h, ok := m.handler(job.Method)
	if !ok {
		m.fail(ctx, id, job.Method, fmt.Errorf("%w: %s", ErrUnknownMethod, job.Method))
		return
	}

	slog.Info("job started", "job_id", id, "method", job.Method, "attempt", job.Attempts+1)
	output, err := h(ctx, &job)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the job running for Recover
			slog.Warn("job interrupted by shutdown", "job_id", id, "method", job.Method)
			return
		}
		m.fail(ctx, id, job.Method, err)
		return
	}
	m.complete(ctx, id, job.Method, output)
}

func (m *JobManager) complete(ctx context.Context, id, method string, output map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := m.store.CompleteStageJob(ctx, id, output); err != nil {
		slog.Warn("failed to persist job completion", "job_id", id, "error", err)
		return
	}
	slog.Info("job completed", "job_id", id, "method", method)
	m.announce(ctx, id)
}

func (m *JobManager) fail(ctx context.Context, id, method string, jobErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := m.store.FailStageJob(ctx, id, jobErr.Error()); err != nil {
		slog.Warn("failed to persist job failure", "job_id", id, "error", err)
		return
	}
	slog.Error("job failed", "job_id", id, "method", method, "error", jobErr)
	m.metrics.RecordFailure(metrics.OpStageJob)
	m.announce(ctx, id)
}

// announce wakes this scheduler and any others sharing the queue.
func (m *JobManager) announce(ctx context.Context, id string) {
	m.poke()
	if err := m.notifier.Publish(ctx, id); err != nil {
		slog.Warn("failed to publish job notification", "job_id", id, "error", err)
	}
}

func (m *JobManager) isInflight(id string) bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

func (m *JobManager) setInflight(id string, on bool) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if on {
		m.inflight[id] = struct{}{}
	} else {
		delete(m.inflight, id)
	}
}

// Wait polls until the job reaches a terminal status.
func (m *JobManager) Wait(ctx context.Context, id string, interval time.Duration) (*models.StageJob, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := m.store.GetStageJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("job %s not found", id)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
