package models

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/tmc/langchaingo/schema"
)

// ChunkMetadata locates a chunk inside its lecture.
type ChunkMetadata struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	StartIdx  int     `json:"start_idx"`
	EndIdx    int     `json:"end_idx"`
	Source    string  `json:"source"`
}

// Map returns the metadata in the shape carried by schema.Document.
func (m ChunkMetadata) Map() map[string]any {
	return map[string]any{
		"start_time": m.StartTime,
		"end_time":   m.EndTime,
		"start_idx":  m.StartIdx,
		"end_idx":    m.EndIdx,
		"source":     m.Source,
	}
}

// ChunkMetadataFromMap parses schema.Document metadata. Missing keys stay zero.
func ChunkMetadataFromMap(m map[string]any) (ChunkMetadata, error) {
	var meta ChunkMetadata
	var err error

	if meta.StartTime, err = floatField(m, "start_time"); err != nil {
		return meta, err
	}
	if meta.EndTime, err = floatField(m, "end_time"); err != nil {
		return meta, err
	}
	startIdx, err := floatField(m, "start_idx")
	if err != nil {
		return meta, err
	}
	endIdx, err := floatField(m, "end_idx")
	if err != nil {
		return meta, err
	}
	meta.StartIdx = int(startIdx)
	meta.EndIdx = int(endIdx)

	if v, ok := m["source"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return meta, fmt.Errorf("metadata source: unexpected type %T", v)
		}
		meta.Source = s
	}
	return meta, nil
}

func floatField(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("metadata %s: unexpected type %T", key, v)
	}
}

// Document is a retrieval unit cut from a window of transcript tokens.
type Document struct {
	PageContent string        `json:"page_content"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// Schema converts to the langchaingo document used by vector stores.
func (d Document) Schema() schema.Document {
	return schema.Document{
		PageContent: d.PageContent,
		Metadata:    d.Metadata.Map(),
	}
}

// DocumentFromSchema converts a langchaingo document back into a Document.
func DocumentFromSchema(doc schema.Document) (Document, error) {
	meta, err := ChunkMetadataFromMap(doc.Metadata)
	if err != nil {
		return Document{}, err
	}
	return Document{PageContent: doc.PageContent, Metadata: meta}, nil
}

// Chunk is a Document as persisted in the SurrealDB vector index.
type Chunk struct {
	ID surrealmodels.RecordID `json:"id"`

	IndexName   string        `json:"index_name"`
	PageContent string        `json:"page_content"`
	Metadata    ChunkMetadata `json:"metadata"`

	// Search
	Embedding []float32 `json:"embedding,omitempty"`
	Distance  *float64  `json:"distance,omitempty"` // Only set on KNN results

	CreatedAt time.Time `json:"created_at"`
}
