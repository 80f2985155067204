package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps chat history in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection serialises appends
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_turns (
		session_id  TEXT NOT NULL,
		position    INTEGER NOT NULL,
		question    TEXT NOT NULL,
		answer      TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, position)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, position, question, answer, created_at
		 FROM chat_turns WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load chat turns: %w", err)
	}
	defer rows.Close()

	turns := []models.ChatTurn{}
	for rows.Next() {
		var t models.ChatTurn
		if err := rows.Scan(&t.SessionID, &t.Position, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turns: %w", err)
	}
	return turns, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, sessionID, question, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (session_id, position, question, answer, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM chat_turns WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, question, answer, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append chat turn: %w", err)
	}
	s.logger.Debug("chat turn appended", "session_id", sessionID)
	return nil
}
