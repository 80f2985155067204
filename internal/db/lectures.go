package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateLecture creates an empty lecture record keyed by its file ID.
// The record has no source and no status until the transcribe stage runs.
func (c *Client) CreateLecture(ctx context.Context, fileID string) (*models.Lecture, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Lecture](ctx, c.db, `
		CREATE type::record("lecture", $id) CONTENT {
			version: 0,
			status_history: [],
			created_at: time::now(),
			updated_at: time::now()
		} RETURN AFTER
	`, map[string]any{"id": fileID})
	if err != nil {
		return nil, fmt.Errorf("create lecture: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create lecture: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetLecture retrieves a lecture by file ID.
// Returns nil if not found.
func (c *Client) GetLecture(ctx context.Context, fileID string) (*models.Lecture, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Lecture](ctx, c.db, `
		SELECT * FROM type::record("lecture", $id)
	`, map[string]any{"id": fileID})
	if err != nil {
		return nil, fmt.Errorf("get lecture: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// SetLectureMetadata writes the source reference and resolved title.
func (c *Client) SetLectureMetadata(ctx context.Context, fileID, source, title string) error {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Lecture](ctx, c.db, `
		UPDATE type::record("lecture", $id) SET
			source = $source,
			title = $title,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": fileID, "source": source, "title": title})
	if err != nil {
		return fmt.Errorf("set lecture metadata: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("set lecture metadata %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// SetLectureMedia records where the importer stored the downloaded media.
func (c *Client) SetLectureMedia(ctx context.Context, fileID, mediaPath string) error {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Lecture](ctx, c.db, `
		UPDATE type::record("lecture", $id) SET
			media_path = $path,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": fileID, "path": mediaPath})
	if err != nil {
		return fmt.Errorf("set lecture media: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("set lecture media %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// CompareAndSwapLectureStatus sets the status only if the stored version still
// equals expectedVersion. The version is bumped and the change appended to
// status_history. Returns ErrVersionConflict when another writer got there first.
func (c *Client) CompareAndSwapLectureStatus(
	ctx context.Context,
	fileID string,
	expectedVersion int,
	status models.LectureStatus,
) (*models.Lecture, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Lecture](ctx, c.db, `
		UPDATE type::record("lecture", $id) SET
			status = $status,
			version += 1,
			status_history += { status: $status, at: time::now() },
			updated_at = time::now()
		WHERE version = $version
		RETURN AFTER
	`, map[string]any{
		"id":      fileID,
		"status":  string(status),
		"version": expectedVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("set lecture status: %w", wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}

	// Nothing updated: either the lecture is gone or the version moved on
	existing, err := c.GetLecture(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("set lecture status %s: %w", fileID, ErrNotFound)
	}
	return nil, fmt.Errorf("set lecture status %s (have %d, want %d): %w",
		fileID, existing.Version, expectedVersion, ErrVersionConflict)
}

// ListLectures returns lectures that have both a source and a status, oldest first.
// Lectures still importing are excluded.
func (c *Client) ListLectures(ctx context.Context) ([]models.Lecture, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Lecture](ctx, c.db, `
		SELECT * FROM lecture
		WHERE source != NONE AND status != NONE
		ORDER BY created_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list lectures: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Lecture{}, nil
	}
	return (*results)[0].Result, nil
}

// CountLecturesByStatus returns the number of lectures per status.
// Lectures without a status are counted under "Importing".
func (c *Client) CountLecturesByStatus(ctx context.Context) (map[string]int, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	type statusCount struct {
		Status *string `json:"status"`
		Count  int     `json:"count"`
	}
	results, err := surrealdb.Query[[]statusCount](ctx, c.db, `
		SELECT status, count() AS count FROM lecture GROUP BY status
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count lectures: %w", err)
	}

	counts := make(map[string]int)
	if results == nil || len(*results) == 0 {
		return counts, nil
	}
	for _, row := range (*results)[0].Result {
		name := "Importing"
		if row.Status != nil {
			name = *row.Status
		}
		counts[name] += row.Count
	}
	return counts, nil
}
