// Package parser turns transcribed speech into retrieval chunks.
package parser

import (
	"strings"

	"github.com/raphaelgruber/askmycourse/internal/models"
)

// ChunkConfig defines sliding-window chunking parameters, in tokens.
type ChunkConfig struct {
	// WindowSize: tokens per chunk
	WindowSize int
	// Overlap: tokens shared by consecutive chunks
	Overlap int
}

// DefaultChunkConfig returns the window used for lecture transcripts.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		WindowSize: 200,
		Overlap:    50,
	}
}

// Stride is the distance between the first tokens of consecutive windows.
// Never less than one.
func (c ChunkConfig) Stride() int {
	s := c.WindowSize - c.Overlap
	if s < 1 {
		return 1
	}
	return s
}

// ChunkTokens cuts an ordered token sequence into overlapping windows.
//
// Each window [i, i+WindowSize) is clipped to the end of the sequence and
// advanced by Stride until i reaches len(tokens). start_time comes from the
// window's first token; end_time, start_idx and end_idx come from its last token.
// An empty sequence yields no chunks.
func ChunkTokens(source string, tokens []models.Token, config ChunkConfig) []models.Document {
	if len(tokens) == 0 {
		return []models.Document{}
	}
	if config.WindowSize < 1 {
		config = DefaultChunkConfig()
	}

	stride := config.Stride()
	docs := make([]models.Document, 0, len(tokens)/stride+1)

	for i := 0; i < len(tokens); i += stride {
		end := min(i+config.WindowSize, len(tokens))
		window := tokens[i:end]

		words := make([]string, len(window))
		for j, tok := range window {
			words[j] = tok.Text
		}

		first, last := window[0], window[len(window)-1]
		docs = append(docs, models.Document{
			PageContent: strings.Join(words, " "),
			Metadata: models.ChunkMetadata{
				StartTime: first.StartTime,
				EndTime:   last.EndTime,
				StartIdx:  last.StartIdx,
				EndIdx:    last.EndIdx,
				Source:    source,
			},
		})
	}

	return docs
}
