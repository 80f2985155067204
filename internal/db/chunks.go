package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// InsertChunks stores documents with their embeddings under indexName.
// Each chunk is written on its own; a failure leaves earlier chunks in place.
// Returns the IDs of the chunks written before any error.
func (c *Client) InsertChunks(
	ctx context.Context,
	indexName string,
	docs []models.Document,
	embeddings [][]float32,
) ([]string, error) {
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("insert chunks: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		id := uuid.New().String()
		start := time.Now()
		_, err := surrealdb.Query[any](ctx, c.db, `
			CREATE type::record("chunk", $id) CONTENT {
				index_name: $index,
				page_content: $content,
				metadata: $metadata,
				embedding: $embedding,
				created_at: time::now()
			}
		`, map[string]any{
			"id":        id,
			"index":     indexName,
			"content":   doc.PageContent,
			"metadata":  doc.Metadata.Map(),
			"embedding": embeddings[i],
		})
		c.timed(metrics.OpDBQuery, start)
		if err != nil {
			return ids, fmt.Errorf("insert chunk %d: %w", i, wrapQueryError(err))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SearchChunks returns the k chunks nearest to embedding within indexName, closest first.
// If source is non-nil only chunks from that lecture are considered.
func (c *Client) SearchChunks(
	ctx context.Context,
	indexName string,
	embedding []float32,
	k int,
	source *string,
) ([]models.Chunk, error) {
	defer c.timed(metrics.OpVectorSearch, time.Now())

	sourceClause := ""
	vars := map[string]any{
		"index": indexName,
		"emb":   embedding,
	}
	if source != nil {
		sourceClause = "AND metadata.source = $source"
		vars["source"] = *source
	}

	// HNSW with ef=40
	sql := fmt.Sprintf(`
		SELECT id, index_name, page_content, metadata, created_at,
			vector::distance::knn() AS distance
		FROM chunk
		WHERE embedding <|%d,40|> $emb AND index_name = $index %s
		ORDER BY distance ASC
	`, k, sourceClause)

	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Chunk{}, nil
	}
	return (*results)[0].Result, nil
}

// CountChunks returns the number of chunks stored under indexName.
func (c *Client) CountChunks(ctx context.Context, indexName string) (int, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM chunk WHERE index_name = $index GROUP ALL
	`, map[string]any{"index": indexName})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}
