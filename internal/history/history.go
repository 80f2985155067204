// Package history stores question/answer turns per chat session.
package history

import (
	"context"

	"github.com/raphaelgruber/askmycourse/internal/models"
)

// Store persists chat turns. Sessions are created implicitly on first Append
// and grow without bound.
type Store interface {
	// Load returns all turns of a session, oldest first. Unknown sessions yield an empty slice.
	Load(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
	// Append adds one turn at the end of a session.
	Append(ctx context.Context, sessionID, question, answer string) error
}

// chatTurnStore is implemented by *db.Client.
type chatTurnStore interface {
	AppendChatTurn(ctx context.Context, sessionID, question, answer string) error
	LoadChatTurns(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
}

// SurrealStore keeps chat history in the SurrealDB chat_turn table.
type SurrealStore struct {
	db chatTurnStore
}

var _ Store = (*SurrealStore)(nil)

// NewSurrealStore creates a history store over a database client.
func NewSurrealStore(db chatTurnStore) *SurrealStore {
	return &SurrealStore{db: db}
}

// Load implements Store.
func (s *SurrealStore) Load(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	return s.db.LoadChatTurns(ctx, sessionID)
}

// Append implements Store.
func (s *SurrealStore) Append(ctx context.Context, sessionID, question, answer string) error {
	return s.db.AppendChatTurn(ctx, sessionID, question, answer)
}
