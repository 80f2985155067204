package models

import "time"

// ChatTurn is one answered question within a conversation session.
type ChatTurn struct {
	SessionID string    `json:"session_id"`
	Position  int       `json:"position"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
