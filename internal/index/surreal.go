package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// ChunkStore persists and searches embedded chunks.
// Implemented by *db.Client.
type ChunkStore interface {
	InsertChunks(ctx context.Context, indexName string, docs []models.Document, embeddings [][]float32) ([]string, error)
	SearchChunks(ctx context.Context, indexName string, embedding []float32, k int, source *string) ([]models.Chunk, error)
}

// SurrealStore is a vector store backed by the SurrealDB chunk table and its HNSW index.
type SurrealStore struct {
	store     ChunkStore
	embedder  embeddings.Embedder
	indexName string
}

var _ vectorstores.VectorStore = (*SurrealStore)(nil)

// NewSurrealStore creates a store writing to indexName by default.
func NewSurrealStore(store ChunkStore, embedder embeddings.Embedder, indexName string) *SurrealStore {
	return &SurrealStore{store: store, embedder: embedder, indexName: indexName}
}

// AddDocuments embeds and stores documents. Documents are not deduplicated.
// On a mid-batch failure the IDs of already stored chunks are returned with the error.
func (s *SurrealStore) AddDocuments(ctx context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}
	o := resolveOptions(s.indexName, opts)
	embedder := s.embedder
	if o.Embedder != nil {
		embedder = o.Embedder
	}

	chunks, texts, err := toDocuments(docs)
	if err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}

	ids, err := s.store.InsertChunks(ctx, o.NameSpace, chunks, vectors)
	if err != nil {
		return ids, fmt.Errorf("add documents: %w", err)
	}

	slog.Debug("indexed chunks", "index", o.NameSpace, "count", len(ids))
	return ids, nil
}

// SimilaritySearch returns up to numDocuments chunks nearest to query, most similar first.
func (s *SurrealStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, opts ...vectorstores.Option) ([]schema.Document, error) {
	o := resolveOptions(s.indexName, opts)
	embedder := s.embedder
	if o.Embedder != nil {
		embedder = o.Embedder
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	chunks, err := s.store.SearchChunks(ctx, o.NameSpace, vector, numDocuments, sourceFilter(o))
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	docs := make([]schema.Document, 0, len(chunks))
	for _, c := range chunks {
		var distance float64
		if c.Distance != nil {
			distance = *c.Distance
		}
		if doc, ok := scored(c.PageContent, c.Metadata, distance, o.ScoreThreshold); ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
