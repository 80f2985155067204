package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// LectureStatus is the ingestion stage a lecture has reached.
// A lecture without a status is still importing.
type LectureStatus string

const (
	StatusTranscribing LectureStatus = "Transcribing"
	StatusIndexing     LectureStatus = "Indexing"
	StatusIndexed      LectureStatus = "Indexed"
)

// StatusChange records one status write in a lecture's history.
type StatusChange struct {
	Status LectureStatus `json:"status"`
	At     time.Time     `json:"at"`
}

// Lecture represents one ingested video, keyed by the file ID assigned at import time.
type Lecture struct {
	ID surrealmodels.RecordID `json:"id"`

	Source *string `json:"source,omitempty"` // Canonical video reference (URL)
	Title  *string `json:"title,omitempty"`  // Resolved display name

	// Status is a single field guarded by Version (compare-and-swap on write).
	Status        *LectureStatus `json:"status,omitempty"`
	Version       int            `json:"version"`
	StatusHistory []StatusChange `json:"status_history,omitempty"`

	// Media produced by the importer
	MediaPath *string `json:"media_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPending reports whether import has not yet reached a status.
func (l *Lecture) IsPending() bool {
	return l.Status == nil
}

// StatusName returns the status as a string, empty when pending.
func (l *Lecture) StatusName() string {
	if l.Status == nil {
		return ""
	}
	return string(*l.Status)
}

// Detail returns the API view of the lecture.
func (l *Lecture) Detail() LectureDetail {
	id, _ := RecordIDString(l.ID)
	return LectureDetail{
		ID:            id,
		Source:        l.Source,
		Title:         l.Title,
		Status:        l.Status,
		Version:       l.Version,
		StatusHistory: l.StatusHistory,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

// LectureDetail is a Lecture as served over HTTP, keyed by its file ID.
type LectureDetail struct {
	ID            string         `json:"id"`
	Source        *string        `json:"source,omitempty"`
	Title         *string        `json:"title,omitempty"`
	Status        *LectureStatus `json:"status,omitempty"`
	Version       int            `json:"version"`
	StatusHistory []StatusChange `json:"status_history,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StatusName returns the status as a string, empty when pending.
func (l *LectureDetail) StatusName() string {
	if l.Status == nil {
		return ""
	}
	return string(*l.Status)
}

// LectureSummary is the listing view of a lecture.
type LectureSummary struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Status string `json:"status"`
	Title  string `json:"title"`
}
