package models

// Token is one word of transcribed speech.
// StartIdx is strictly increasing within a file and defines chunking order.
type Token struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"` // seconds, media-relative
	EndTime   float64 `json:"end_time"`
	StartIdx  int     `json:"start_idx"`
	EndIdx    int     `json:"end_idx"`
}
