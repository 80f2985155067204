package service

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/askmycourse/internal/db"
	"github.com/raphaelgruber/askmycourse/internal/models"
)

// UnknownTitle is listed for lectures whose title was never resolved.
const UnknownTitle = "unknown"

// LectureService reads lecture records.
type LectureService struct {
	lectures LectureStore
}

// NewLectureService creates a new lecture service.
func NewLectureService(lectures LectureStore) *LectureService {
	return &LectureService{lectures: lectures}
}

// List returns every lecture that has both a source and a status.
func (s *LectureService) List(ctx context.Context) ([]models.LectureSummary, error) {
	lectures, err := s.lectures.ListLectures(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lectures: %w", err)
	}

	out := make([]models.LectureSummary, 0, len(lectures))
	for _, l := range lectures {
		if l.Source == nil || l.Status == nil {
			continue
		}
		id, err := models.RecordIDString(l.ID)
		if err != nil {
			continue
		}
		title := UnknownTitle
		if l.Title != nil {
			title = *l.Title
		}
		out = append(out, models.LectureSummary{
			ID:     id,
			Source: *l.Source,
			Status: string(*l.Status),
			Title:  title,
		})
	}
	return out, nil
}

// Get returns a single lecture with its status history.
func (s *LectureService) Get(ctx context.Context, fileID string) (*models.Lecture, error) {
	lecture, err := s.lectures.GetLecture(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get lecture: %w", err)
	}
	if lecture == nil {
		return nil, fmt.Errorf("lecture %s: %w", fileID, db.ErrNotFound)
	}
	return lecture, nil
}

// CountByStatus returns lecture counts keyed by status.
func (s *LectureService) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.lectures.CountLecturesByStatus(ctx)
}
