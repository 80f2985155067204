package cli

import (
	"testing"

	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(id, method string, status models.JobStatus, args map[string]any) models.StageJobInfo {
	return models.StageJobInfo{ID: id, Method: method, Status: status, Args: args}
}

func TestLectureJobs(t *testing.T) {
	jobs := []models.StageJobInfo{
		job("imp", "import_lecture", models.JobStatusCompleted, map[string]any{"file_id": "f1", "url": "u"}),
		job("tl", "transcribe_lecture", models.JobStatusCompleted, map[string]any{"task_id": "imp", "source": "u"}),
		job("ta", "transcribe_audio", models.JobStatusCompleted, map[string]any{"file_id": "f1"}),
		job("il", "index_lecture", models.JobStatusPending, map[string]any{"task_id": "ta", "source": "u"}),
		job("other", "import_lecture", models.JobStatusFailed, map[string]any{"file_id": "f2"}),
		job("other-tl", "transcribe_lecture", models.JobStatusPending, map[string]any{"task_id": "other"}),
	}

	got := lectureJobs("f1", jobs)
	var ids []string
	for _, j := range got {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"imp", "tl", "ta", "il"}, ids)
	assert.Nil(t, failedJob(got))

	failed := failedJob(lectureJobs("f2", jobs))
	require.NotNil(t, failed)
	assert.Equal(t, "other", failed.ID)
}

func TestLectureJobs_ChainInAnyOrder(t *testing.T) {
	// Newest first, as GET /jobs returns them.
	jobs := []models.StageJobInfo{
		job("il", "index_lecture", models.JobStatusPending, map[string]any{"task_id": "ta"}),
		job("ta", "transcribe_audio", models.JobStatusPending, map[string]any{"file_id": "f1"}),
		job("tl", "transcribe_lecture", models.JobStatusFailed, map[string]any{"task_id": "imp"}),
		job("imp", "import_lecture", models.JobStatusCompleted, map[string]any{"file_id": "f1"}),
	}

	assert.Len(t, lectureJobs("f1", jobs), 4)
	failed := failedJob(lectureJobs("f1", jobs))
	require.NotNil(t, failed)
	assert.Equal(t, "transcribe_lecture", failed.Method)
}

func TestStageError(t *testing.T) {
	msg := "resolve title: video unavailable"
	err := stageError(&models.StageJobInfo{Method: "transcribe_lecture", Error: &msg})
	assert.EqualError(t, err, "transcribe_lecture failed: resolve title: video unavailable")

	err = stageError(&models.StageJobInfo{Method: "import_lecture"})
	assert.EqualError(t, err, "import_lecture failed: unknown error")
}

func TestLectureState(t *testing.T) {
	status := func(s models.LectureStatus) *models.LectureStatus { return &s }

	tests := []struct {
		name     string
		lecture  *models.LectureDetail
		stage    int
		fraction float64
		indexed  bool
		status   string
	}{
		{"not loaded", nil, 0, 0, false, "Importing"},
		{"importing", &models.LectureDetail{}, 0, 0, false, "Importing"},
		{"transcribing", &models.LectureDetail{Status: status(models.StatusTranscribing)}, 1, 1.0 / 3, false, "Transcribing"},
		{"indexing", &models.LectureDetail{Status: status(models.StatusIndexing)}, 2, 2.0 / 3, false, "Indexing"},
		{"indexed", &models.LectureDetail{Status: status(models.StatusIndexed)}, 3, 1, true, "Indexed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := lectureState{lecture: tt.lecture}
			assert.Equal(t, tt.stage, s.stage())
			assert.InDelta(t, tt.fraction, s.fraction(), 1e-9)
			assert.Equal(t, tt.indexed, s.indexed())
			assert.Equal(t, tt.status, s.statusName())
		})
	}
}

func TestFormatSource(t *testing.T) {
	doc := models.Document{Metadata: models.ChunkMetadata{Source: "https://youtu.be/x", StartTime: 65, EndTime: 3725}}
	assert.Equal(t, "https://youtu.be/x @ 1:05-1:02:05", formatSource(doc))
}
