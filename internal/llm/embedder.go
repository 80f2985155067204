// Package llm provides generation and embedding services using langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/askmycourse/internal/config"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	bedrockembed "github.com/tmc/langchaingo/embeddings/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// embedBatchSize bounds how many chunk texts go to the provider in one request.
const embedBatchSize = 64

// ErrDimensionMismatch is returned when the provider's vectors do not match
// the configured index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder wraps a langchaingo embedder with batching, dimension checks and timing.
// It satisfies embeddings.Embedder so vector stores can use it directly.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	metrics   *metrics.Collector
}

var _ embeddings.Embedder = (*Embedder)(nil)

// NewEmbedder creates the embedder selected by cfg.EmbedProvider. collector may be nil.
func NewEmbedder(ctx context.Context, cfg config.Config, collector *metrics.Collector) (*Embedder, error) {
	model, err := newEmbeddingModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEmbedderFrom(model, cfg.EmbedModel, cfg.EmbedDimension, collector), nil
}

func newEmbeddingModel(ctx context.Context, cfg config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		client, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		client, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return embeddings.NewEmbedder(client)

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err := bedrockembed.NewBedrock(
			bedrockembed.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrockembed.WithModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock embedder: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}
}

// NewEmbedderFrom wraps an existing langchaingo embedder.
func NewEmbedderFrom(model embeddings.Embedder, name string, dimension int, collector *metrics.Collector) *Embedder {
	return &Embedder{model: model, dimension: dimension, modelName: name, metrics: collector}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedQuery implements embeddings.Embedder. Used for the standalone question.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vectors[0], nil
}

// EmbedDocuments implements embeddings.Embedder. Texts are sent in batches of
// embedBatchSize; vectors come back in input order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vectors, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed documents %d-%d of %d: %w", start, end, len(texts), err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embed makes one provider call and validates what comes back.
func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	done := e.metrics.Track(metrics.OpEmbedding)
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	done()
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "texts", len(texts), "error", err)
		return nil, wrapFatalError(err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: text %d has %d, index expects %d", ErrDimensionMismatch, i, len(v), e.dimension)
		}
	}
	slog.Debug("embedded texts", "model", e.modelName, "texts", len(texts))
	return vectors, nil
}
