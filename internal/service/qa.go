package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/askmycourse/internal/history"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/tmc/langchaingo/vectorstores"
)

// NoSourcesAnswer is returned when retrieval finds nothing; no generation runs.
const NoSourcesAnswer = "No sources found to answer your question. Please try another question."

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is required")

// StandaloneQuery is the retrieval query derived from a question and its chat history.
type StandaloneQuery struct {
	Text      string
	Condensed bool // false when there was no history to condense against
}

// RetrievedChunks are the nearest chunks for a query, most similar first.
type RetrievedChunks []models.Document

// Answer is the result of answering one question.
type Answer struct {
	Answer  string            `json:"answer"`
	Sources []models.Document `json:"sources"`
}

// QAConfig wires the question answering engine.
type QAConfig struct {
	History          history.Store
	Index            vectorstores.VectorStore
	Generator        Generator
	IndexName        string
	DefaultSessionID string
	TopK             int
}

// QAEngine answers questions over indexed lectures, keeping per-session chat history.
type QAEngine struct {
	history        history.Store
	index          vectorstores.VectorStore
	generator      Generator
	indexName      string
	defaultSession string
	topK           int
}

// NewQAEngine creates a new QA engine.
func NewQAEngine(cfg QAConfig) *QAEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = 2
	}
	if cfg.DefaultSessionID == "" {
		cfg.DefaultSessionID = "default"
	}
	return &QAEngine{
		history:        cfg.History,
		index:          cfg.Index,
		generator:      cfg.Generator,
		indexName:      cfg.IndexName,
		defaultSession: cfg.DefaultSessionID,
		topK:           cfg.TopK,
	}
}

// SessionID resolves an empty session ID to the default session.
func (e *QAEngine) SessionID(sessionID string) string {
	if strings.TrimSpace(sessionID) == "" {
		return e.defaultSession
	}
	return sessionID
}

// History returns the turns of a session, oldest first.
func (e *QAEngine) History(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	return e.history.Load(ctx, e.SessionID(sessionID))
}

// Answer runs condense, retrieve and generate, then records the turn.
// When nothing is retrieved the fixed NoSourcesAnswer is returned and no turn is recorded.
func (e *QAEngine) Answer(ctx context.Context, question, sessionID string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	sessionID = e.SessionID(sessionID)

	turns, err := e.history.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	query, err := e.Condense(ctx, turns, question)
	if err != nil {
		return nil, err
	}

	chunks, err := e.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		slog.Info("no sources retrieved", "session_id", sessionID)
		return &Answer{Answer: NoSourcesAnswer, Sources: []models.Document{}}, nil
	}

	answer, err := e.Generate(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	if err := e.history.Append(ctx, sessionID, question, answer); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	slog.Info("question answered", "session_id", sessionID, "sources", len(chunks), "condensed", query.Condensed)
	return &Answer{Answer: answer, Sources: chunks}, nil
}

// Condense turns a follow-up question into a standalone query.
// Without history the question is used as is and no generation runs.
func (e *QAEngine) Condense(ctx context.Context, turns []models.ChatTurn, question string) (StandaloneQuery, error) {
	if len(turns) == 0 {
		return StandaloneQuery{Text: question}, nil
	}
	text, err := e.generator.Condense(ctx, turns, question)
	if err != nil {
		return StandaloneQuery{}, fmt.Errorf("condense: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		text = question
	}
	return StandaloneQuery{Text: text, Condensed: true}, nil
}

// Retrieve returns the top-k chunks for the query.
func (e *QAEngine) Retrieve(ctx context.Context, query StandaloneQuery) (RetrievedChunks, error) {
	docs, err := e.index.SimilaritySearch(ctx, query.Text, e.topK, vectorstores.WithNameSpace(e.indexName))
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	chunks := make(RetrievedChunks, 0, len(docs))
	for _, d := range docs {
		doc, err := models.DocumentFromSchema(d)
		if err != nil {
			return nil, fmt.Errorf("retrieve: %w", err)
		}
		chunks = append(chunks, doc)
	}
	return chunks, nil
}

// Generate answers the original question from the retrieved chunks. The answer is trimmed.
func (e *QAEngine) Generate(ctx context.Context, question string, chunks RetrievedChunks) (string, error) {
	answer, err := e.generator.Answer(ctx, question, chunks)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
