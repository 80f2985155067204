package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// maxAppendAttempts bounds retries when two appends race for the same position.
const maxAppendAttempts = 5

// AppendChatTurn adds a question/answer pair at the end of a session.
// Creates the session implicitly on first use.
func (c *Client) AppendChatTurn(ctx context.Context, sessionID, question, answer string) error {
	var lastErr error
	for range maxAppendAttempts {
		err := c.appendChatTurn(ctx, sessionID, question, answer)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrAlreadyExists) && !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("append chat turn: %w", lastErr)
}

func (c *Client) appendChatTurn(ctx context.Context, sessionID, question, answer string) error {
	defer c.timed(metrics.OpDBQuery, time.Now())

	// The unique (session_id, position) index rejects a racing append.
	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $pos = (SELECT count() AS c FROM chat_turn WHERE session_id = $session GROUP ALL)[0].c ?? 0;
		CREATE chat_turn CONTENT {
			session_id: $session,
			position: $pos,
			question: $question,
			answer: $answer,
			created_at: time::now()
		};
	`, map[string]any{
		"session":  sessionID,
		"question": question,
		"answer":   answer,
	})
	if err != nil {
		return fmt.Errorf("append chat turn: %w", wrapQueryError(err))
	}
	return nil
}

// LoadChatTurns returns all turns of a session, oldest first.
// An unknown session yields an empty slice.
func (c *Client) LoadChatTurns(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	defer c.timed(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.ChatTurn](ctx, c.db, `
		SELECT session_id, position, question, answer, created_at
		FROM chat_turn
		WHERE session_id = $session
		ORDER BY position ASC
	`, map[string]any{"session": sessionID})
	if err != nil {
		return nil, fmt.Errorf("load chat turns: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.ChatTurn{}, nil
	}
	return (*results)[0].Result, nil
}
