package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("embed: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

// fakeLLM records the last prompt and call options.
type fakeLLM struct {
	reply   string
	err     error
	prompt  string
	options llms.CallOptions
	info    map[string]any
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	f.options = llms.CallOptions{}
	for _, o := range opts {
		o(&f.options)
	}
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompt = text.Text
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply, GenerationInfo: f.info}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestGenerateUsesZeroTemperature(t *testing.T) {
	fake := &fakeLLM{reply: "ok", info: map[string]any{"PromptTokens": 12, "CompletionTokens": 3}}
	collector := metrics.NewCollector()
	m := NewModelFromLLM(fake, "fake", collector)

	out, err := m.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 0.0, fake.options.Temperature)

	snap := collector.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	require.NotNil(t, snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(12), *snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(3), *snap.LLMGenerate.TotalOutputTokens)
}

func TestGenerateWrapsFatalErrors(t *testing.T) {
	m := NewModelFromLLM(&fakeLLM{err: errors.New("HTTP 401: invalid api key")}, "fake", nil)
	_, err := m.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrFatalAPI)
}

func TestCondenseTrimsAndIncludesHistory(t *testing.T) {
	fake := &fakeLLM{reply: "  What is a monad?\n"}
	m := NewModelFromLLM(fake, "fake", nil)

	history := []models.ChatTurn{{Question: "What is Haskell?", Answer: "A functional language."}}
	out, err := m.Condense(context.Background(), history, "and monads?")
	require.NoError(t, err)
	assert.Equal(t, "What is a monad?", out)
	assert.Contains(t, fake.prompt, "Human: What is Haskell?")
	assert.Contains(t, fake.prompt, "Assistant: A functional language.")
	assert.Contains(t, fake.prompt, "Follow Up Input: and monads?")
}

func TestAnswerStuffsAllDocuments(t *testing.T) {
	fake := &fakeLLM{reply: "answer"}
	m := NewModelFromLLM(fake, "fake", nil)

	docs := []models.Document{{PageContent: "first chunk"}, {PageContent: "second chunk"}}
	out, err := m.Answer(context.Background(), "why?", docs)
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Contains(t, fake.prompt, "first chunk\n\nsecond chunk")
	assert.Contains(t, fake.prompt, "Question: why?")
}

func TestTokenUsage(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		wantIn  int64
		wantOut int64
	}{
		{"nil", nil, 0, 0},
		{"openai", map[string]any{"PromptTokens": 10, "CompletionTokens": 5}, 10, 5},
		{"anthropic", map[string]any{"InputTokens": 7, "OutputTokens": 2}, 7, 2},
		{"ollama floats", map[string]any{"prompt_eval_count": float64(4), "eval_count": float64(9)}, 4, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := tokenUsage(tt.info)
			assert.Equal(t, tt.wantIn, in)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}
