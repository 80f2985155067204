package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/raphaelgruber/askmycourse/internal/parser"
	"github.com/sashabaranov/go-openai"
)

// WhisperConfig configures the speech-to-text client.
type WhisperConfig struct {
	APIKey  string
	BaseURL string // optional OpenAI-compatible endpoint
	Model   string // e.g. "whisper-1"
}

// Whisper transcribes media with word-level timestamps via the OpenAI audio API.
type Whisper struct {
	client  *openai.Client
	model   string
	metrics *metrics.Collector
}

var _ Transcriber = (*Whisper)(nil)

// NewWhisper creates a transcriber. collector may be nil.
func NewWhisper(cfg WhisperConfig, collector *metrics.Collector) *Whisper {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &Whisper{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		metrics: collector,
	}
}

// Transcribe returns one token per recognised word, in spoken order.
func (w *Whisper) Transcribe(ctx context.Context, path string) ([]models.Token, error) {
	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	duration := time.Since(start)
	if w.metrics != nil {
		w.metrics.RecordTiming(metrics.OpTranscription, duration)
	}
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", path, err)
	}

	tokens := tokensFromResponse(resp)
	slog.Info("transcription complete", "path", path, "words", len(tokens), "duration_ms", duration.Milliseconds())
	return tokens, nil
}

func tokensFromResponse(resp openai.AudioResponse) []models.Token {
	words := make([]parser.Word, len(resp.Words))
	for i, w := range resp.Words {
		words[i] = parser.Word{Text: w.Word, Start: w.Start, End: w.End}
	}
	return parser.TokensFromWords(words)
}
