package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// CreateStageJob persists a pending stage job.
// waitOn lists the IDs of jobs that must complete before this one may run.
func (c *Client) CreateStageJob(
	ctx context.Context,
	id string,
	method string,
	args map[string]any,
	waitOn []string,
) (*models.StageJob, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	if args == nil {
		args = map[string]any{}
	}
	if waitOn == nil {
		waitOn = []string{}
	}

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		CREATE type::record("stage_job", $id) CONTENT {
			method: $method,
			args: $args,
			wait_on: $wait_on,
			status: "pending",
			attempts: 0,
			created_at: time::now()
		} RETURN AFTER
	`, map[string]any{
		"id":      id,
		"method":  method,
		"args":    args,
		"wait_on": waitOn,
	})
	if err != nil {
		return nil, fmt.Errorf("create stage job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create stage job: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetStageJob retrieves a stage job by ID.
// Returns nil if not found.
func (c *Client) GetStageJob(ctx context.Context, id string) (*models.StageJob, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		SELECT * FROM type::record("stage_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get stage job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetStageJobs retrieves several stage jobs by ID. Missing IDs are skipped.
func (c *Client) GetStageJobs(ctx context.Context, ids []string) ([]models.StageJob, error) {
	if len(ids) == 0 {
		return []models.StageJob{}, nil
	}
	defer c.timed(metrics.OpDBQuery, time.Now())

	recordIDs := make([]surrealmodels.RecordID, len(ids))
	for i, id := range ids {
		recordIDs[i] = surrealmodels.NewRecordID("stage_job", id)
	}

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		SELECT * FROM stage_job WHERE id IN $ids
	`, map[string]any{"ids": recordIDs})
	if err != nil {
		return nil, fmt.Errorf("get stage jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.StageJob{}, nil
	}
	return (*results)[0].Result, nil
}

// ListPendingStageJobs returns pending jobs in submission order.
func (c *Client) ListPendingStageJobs(ctx context.Context, limit int) ([]models.StageJob, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		SELECT * FROM stage_job WHERE status = "pending" ORDER BY created_at ASC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list pending stage jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.StageJob{}, nil
	}
	return (*results)[0].Result, nil
}

// ListStageJobs returns the most recent jobs, newest first.
func (c *Client) ListStageJobs(ctx context.Context, limit int) ([]models.StageJob, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		SELECT * FROM stage_job ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list stage jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.StageJob{}, nil
	}
	return (*results)[0].Result, nil
}

// ClaimStageJob moves a job from pending to running.
// Returns false if the job was not pending (another worker claimed it).
func (c *Client) ClaimStageJob(ctx context.Context, id string) (bool, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		UPDATE type::record("stage_job", $id) SET
			status = "running",
			attempts += 1,
			started_at = time::now()
		WHERE status = "pending"
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("claim stage job: %w", wrapQueryError(err))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}

// CompleteStageJob marks a running job completed with its output.
func (c *Client) CompleteStageJob(ctx context.Context, id string, output map[string]any) error {
	defer c.timed(metrics.OpDBQuery, time.Now())

	if output == nil {
		output = map[string]any{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("stage_job", $id) SET
			status = "completed",
			output = $output,
			completed_at = time::now()
	`, map[string]any{"id": id, "output": output})
	if err != nil {
		return fmt.Errorf("complete stage job: %w", wrapQueryError(err))
	}
	return nil
}

// FailStageJob marks a job failed with an error message.
func (c *Client) FailStageJob(ctx context.Context, id string, message string) error {
	defer c.timed(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("stage_job", $id) SET
			status = "failed",
			error = $error,
			completed_at = time::now()
	`, map[string]any{"id": id, "error": message})
	if err != nil {
		return fmt.Errorf("fail stage job: %w", wrapQueryError(err))
	}
	return nil
}

// ResetRunningStageJobs returns jobs left running by a previous process to pending.
// Returns the number of jobs reset.
func (c *Client) ResetRunningStageJobs(ctx context.Context) (int, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.StageJob](ctx, c.db, `
		UPDATE stage_job SET status = "pending", started_at = NONE
		WHERE status = "running"
		RETURN AFTER
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("reset running stage jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
