// Package index implements the vector index used for lecture chunks.
// Both backends satisfy langchaingo's vectorstores.VectorStore.
package index

import (
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// resolveOptions applies vectorstores options over the store defaults.
func resolveOptions(defaultNamespace string, opts []vectorstores.Option) vectorstores.Options {
	o := vectorstores.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.NameSpace == "" {
		o.NameSpace = defaultNamespace
	}
	return o
}

// sourceFilter extracts a "source" equality filter, if one was given.
func sourceFilter(o vectorstores.Options) *string {
	filters, ok := o.Filters.(map[string]any)
	if !ok {
		return nil
	}
	s, ok := filters["source"].(string)
	if !ok {
		return nil
	}
	return &s
}

// toDocuments converts langchaingo documents and reports the page contents to embed.
func toDocuments(docs []schema.Document) ([]models.Document, []string, error) {
	out := make([]models.Document, len(docs))
	texts := make([]string, len(docs))
	for i, d := range docs {
		doc, err := models.DocumentFromSchema(d)
		if err != nil {
			return nil, nil, err
		}
		out[i] = doc
		texts[i] = d.PageContent
	}
	return out, texts, nil
}

// scored builds a result document, returning false when it falls below the threshold.
// Score is cosine similarity: 1 - cosine distance.
func scored(content string, meta models.ChunkMetadata, distance float64, threshold float32) (schema.Document, bool) {
	score := float32(1 - distance)
	if threshold > 0 && score < threshold {
		return schema.Document{}, false
	}
	return schema.Document{
		PageContent: content,
		Metadata:    meta.Map(),
		Score:       score,
	}, true
}
