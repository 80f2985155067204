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

type transcriptRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	Tokens    []models.Token         `json:"tokens"`
	CreatedAt time.Time              `json:"created_at"`
}

// SaveTranscript stores the tokens for a lecture file, replacing any earlier transcript.
func (c *Client) SaveTranscript(ctx context.Context, fileID string, tokens []models.Token) error {
	defer c.timed(metrics.OpDBQuery, time.Now())

	rows := make([]map[string]any, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, map[string]any{
			"text":       t.Text,
			"start_time": t.StartTime,
			"end_time":   t.EndTime,
			"start_idx":  t.StartIdx,
			"end_idx":    t.EndIdx,
		})
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("transcript", $id) CONTENT {
			tokens: $tokens,
			created_at: time::now()
		}
	`, map[string]any{"id": fileID, "tokens": rows})
	if err != nil {
		return fmt.Errorf("save transcript: %w", wrapQueryError(err))
	}
	return nil
}

// GetTranscript returns the stored tokens for a lecture file.
// Returns ErrNotFound if the file was never transcribed.
func (c *Client) GetTranscript(ctx context.Context, fileID string) ([]models.Token, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]transcriptRecord](ctx, c.db, `
		SELECT * FROM type::record("transcript", $id)
	`, map[string]any{"id": fileID})
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get transcript %s: %w", fileID, ErrNotFound)
	}
	return (*results)[0].Result[0].Tokens, nil
}
