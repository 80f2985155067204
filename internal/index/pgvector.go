package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// PGVectorStore is a vector store backed by PostgreSQL with the pgvector extension.
type PGVectorStore struct {
	db        *sql.DB
	embedder  embeddings.Embedder
	indexName string
	dimension int
	metrics   *metrics.Collector
}

var _ vectorstores.VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore connects to PostgreSQL and creates the chunk table if needed.
// collector may be nil.
func NewPGVectorStore(
	ctx context.Context,
	dsn string,
	embedder embeddings.Embedder,
	indexName string,
	dimension int,
	collector *metrics.Collector,
) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PGVectorStore{
		db:        db,
		embedder:  embedder,
		indexName: indexName,
		dimension: dimension,
		metrics:   collector,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lecture_chunk (
			id TEXT PRIMARY KEY,
			index_name TEXT NOT NULL,
			page_content TEXT NOT NULL,
			metadata JSONB NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS lecture_chunk_index_name ON lecture_chunk (index_name)`,
		`CREATE INDEX IF NOT EXISTS lecture_chunk_embedding ON lecture_chunk USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate pgvector: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

// AddDocuments embeds and stores documents, one row per chunk.
// On a mid-batch failure the IDs of already stored chunks are returned with the error.
func (s *PGVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
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
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("add documents: %d documents but %d embeddings", len(chunks), len(vectors))
	}

	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		meta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return ids, fmt.Errorf("encode metadata: %w", err)
		}
		id := uuid.New().String()
		done := s.metrics.Track(metrics.OpDBQuery)
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO lecture_chunk (id, index_name, page_content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
		`, id, o.NameSpace, chunk.PageContent, meta, pgvector.NewVector(vectors[i]))
		done()
		if err != nil {
			return ids, fmt.Errorf("insert chunk %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SimilaritySearch returns up to numDocuments chunks nearest to query by cosine distance.
func (s *PGVectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, opts ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}
	o := resolveOptions(s.indexName, opts)
	embedder := s.embedder
	if o.Embedder != nil {
		embedder = o.Embedder
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	args := []any{o.NameSpace, pgvector.NewVector(vector), numDocuments}
	sourceClause := ""
	if src := sourceFilter(o); src != nil {
		sourceClause = "AND metadata->>'source' = $4"
		args = append(args, *src)
	}

	defer s.metrics.Track(metrics.OpVectorSearch)()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT page_content, metadata, embedding <=> $2 AS distance
		FROM lecture_chunk
		WHERE index_name = $1 %s
		ORDER BY embedding <=> $2
		LIMIT $3
	`, sourceClause), args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var docs []schema.Document
	for rows.Next() {
		var (
			content  string
			rawMeta  []byte
			distance float64
			meta     models.ChunkMetadata
		)
		if err := rows.Scan(&content, &rawMeta, &distance); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if doc, ok := scored(content, meta, distance, o.ScoreThreshold); ok {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	if docs == nil {
		docs = []schema.Document{}
	}
	return docs, nil
}
