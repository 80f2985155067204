package service

import (
	"context"

	"github.com/raphaelgruber/askmycourse/internal/models"
)

// JobStore persists stage jobs. Implemented by *db.Client.
type JobStore interface {
	CreateStageJob(ctx context.Context, id, method string, args map[string]any, waitOn []string) (*models.StageJob, error)
	GetStageJob(ctx context.Context, id string) (*models.StageJob, error)
	GetStageJobs(ctx context.Context, ids []string) ([]models.StageJob, error)
	ListPendingStageJobs(ctx context.Context, limit int) ([]models.StageJob, error)
	ListStageJobs(ctx context.Context, limit int) ([]models.StageJob, error)
	ClaimStageJob(ctx context.Context, id string) (bool, error)
	CompleteStageJob(ctx context.Context, id string, output map[string]any) error
	FailStageJob(ctx context.Context, id string, message string) error
	ResetRunningStageJobs(ctx context.Context) (int, error)
}

// LectureStore persists lecture records. Implemented by *db.Client.
type LectureStore interface {
	CreateLecture(ctx context.Context, fileID string) (*models.Lecture, error)
	GetLecture(ctx context.Context, fileID string) (*models.Lecture, error)
	SetLectureMetadata(ctx context.Context, fileID, source, title string) error
	SetLectureMedia(ctx context.Context, fileID, mediaPath string) error
	CompareAndSwapLectureStatus(ctx context.Context, fileID string, expectedVersion int, status models.LectureStatus) (*models.Lecture, error)
	ListLectures(ctx context.Context) ([]models.Lecture, error)
	CountLecturesByStatus(ctx context.Context) (map[string]int, error)
}

// TranscriptStore persists timestamped tokens per lecture file. Implemented by *db.Client.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, fileID string, tokens []models.Token) error
	GetTranscript(ctx context.Context, fileID string) ([]models.Token, error)
}

// Generator runs the two generation steps of question answering. Implemented by *llm.Model.
type Generator interface {
	Condense(ctx context.Context, history []models.ChatTurn, question string) (string, error)
	Answer(ctx context.Context, question string, docs []models.Document) (string, error)
}
