package index

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type fakeChunkStore struct {
	inserted  map[string][]models.Document
	results   []models.Chunk
	failAfter int // fail the insert once this many chunks were stored; 0 disables
	lastIndex string
	lastK     int
	lastSrc   *string
}

func (f *fakeChunkStore) InsertChunks(_ context.Context, indexName string, docs []models.Document, vecs [][]float32) ([]string, error) {
	if f.inserted == nil {
		f.inserted = map[string][]models.Document{}
	}
	var ids []string
	for i, d := range docs {
		if f.failAfter > 0 && i == f.failAfter {
			return ids, errors.New("write failed")
		}
		f.inserted[indexName] = append(f.inserted[indexName], d)
		ids = append(ids, d.PageContent)
	}
	return ids, nil
}

func (f *fakeChunkStore) SearchChunks(_ context.Context, indexName string, _ []float32, k int, source *string) ([]models.Chunk, error) {
	f.lastIndex, f.lastK, f.lastSrc = indexName, k, source
	return f.results, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func ptr[T any](v T) *T { return &v }

func TestSurrealStoreAddDocuments(t *testing.T) {
	store := &fakeChunkStore{}
	s := NewSurrealStore(store, fakeEmbedder{}, "lectures")

	docs := []schema.Document{
		models.Document{PageContent: "a", Metadata: models.ChunkMetadata{StartIdx: 1, Source: "s"}}.Schema(),
		models.Document{PageContent: "b"}.Schema(),
	}
	ids, err := s.AddDocuments(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	require.Len(t, store.inserted["lectures"], 2)
	assert.Equal(t, "s", store.inserted["lectures"][0].Metadata.Source)

	// Re-adding duplicates rather than deduplicating
	_, err = s.AddDocuments(context.Background(), docs)
	require.NoError(t, err)
	assert.Len(t, store.inserted["lectures"], 4)
}

func TestSurrealStoreNamespaceOption(t *testing.T) {
	store := &fakeChunkStore{}
	s := NewSurrealStore(store, fakeEmbedder{}, "lectures")

	_, err := s.AddDocuments(context.Background(), []schema.Document{{PageContent: "x"}}, vectorstores.WithNameSpace("other"))
	require.NoError(t, err)
	assert.Len(t, store.inserted["other"], 1)
	assert.Empty(t, store.inserted["lectures"])
}

func TestSurrealStorePartialFailure(t *testing.T) {
	store := &fakeChunkStore{failAfter: 1}
	s := NewSurrealStore(store, fakeEmbedder{}, "lectures")

	ids, err := s.AddDocuments(context.Background(), []schema.Document{{PageContent: "a"}, {PageContent: "b"}})
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, ids, "chunks written before the failure stay indexed")
}

func TestSurrealStoreSimilaritySearch(t *testing.T) {
	store := &fakeChunkStore{results: []models.Chunk{
		{PageContent: "near", Metadata: models.ChunkMetadata{StartTime: 12.5, Source: "s"}, Distance: ptr(0.1)},
		{PageContent: "far", Distance: ptr(0.8)},
	}}
	s := NewSurrealStore(store, fakeEmbedder{}, "lectures")

	docs, err := s.SimilaritySearch(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "near", docs[0].PageContent)
	assert.InDelta(t, 0.9, docs[0].Score, 0.0001)
	assert.Equal(t, 12.5, docs[0].Metadata["start_time"])
	assert.Equal(t, "lectures", store.lastIndex)
	assert.Equal(t, 2, store.lastK)
	assert.Nil(t, store.lastSrc)

	docs, err = s.SimilaritySearch(context.Background(), "q", 2,
		vectorstores.WithScoreThreshold(0.5),
		vectorstores.WithFilters(map[string]any{"source": "s"}))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NotNil(t, store.lastSrc)
	assert.Equal(t, "s", *store.lastSrc)
}
