package parser

import (
	"slices"
	"strings"

	"github.com/raphaelgruber/askmycourse/internal/models"
)

// Word is a single recognised word with media-relative timing in seconds.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// TokensFromWords converts recognised words into tokens.
// Text is trimmed, empty words are dropped and indexes are assigned
// sequentially so that token n spans [n, n+1).
func TokensFromWords(words []Word) []models.Token {
	tokens := make([]models.Token, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		idx := len(tokens)
		tokens = append(tokens, models.Token{
			Text:      text,
			StartTime: w.Start,
			EndTime:   w.End,
			StartIdx:  idx,
			EndIdx:    idx + 1,
		})
	}
	return tokens
}

// SortTokens orders tokens by start_idx in place. Equal indexes keep their order.
func SortTokens(tokens []models.Token) {
	slices.SortStableFunc(tokens, func(a, b models.Token) int {
		return a.StartIdx - b.StartIdx
	})
}
