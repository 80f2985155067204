package service

import (
	"context"
	"sort"
	"testing"

	"github.com/raphaelgruber/askmycourse/internal/db"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLectureService_List(t *testing.T) {
	store := newMemLectureStore()
	ctx := context.Background()

	// Still importing: no source, no status
	_, err := store.CreateLecture(ctx, "importing")
	require.NoError(t, err)

	_, err = store.CreateLecture(ctx, "titled")
	require.NoError(t, err)
	require.NoError(t, store.SetLectureMetadata(ctx, "titled", "https://youtu.be/a", "Intro to ML"))
	_, err = store.CompareAndSwapLectureStatus(ctx, "titled", 0, models.StatusTranscribing)
	require.NoError(t, err)

	// Title never resolved
	_, err = store.CreateLecture(ctx, "untitled")
	require.NoError(t, err)
	source := "https://youtu.be/b"
	status := models.StatusIndexed
	store.lectures["untitled"].Source = &source
	store.lectures["untitled"].Status = &status

	summaries, err := NewLectureService(store).List(ctx)
	require.NoError(t, err)
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

	assert.Equal(t, []models.LectureSummary{
		{ID: "titled", Source: "https://youtu.be/a", Status: "Transcribing", Title: "Intro to ML"},
		{ID: "untitled", Source: "https://youtu.be/b", Status: "Indexed", Title: UnknownTitle},
	}, summaries)
}

func TestLectureService_ListEmpty(t *testing.T) {
	summaries, err := NewLectureService(newMemLectureStore()).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestLectureService_Get(t *testing.T) {
	store := newMemLectureStore()
	ctx := context.Background()
	_, err := store.CreateLecture(ctx, "f1")
	require.NoError(t, err)

	svc := NewLectureService(store)
	lecture, err := svc.Get(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, lecture.IsPending())

	_, err = svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestLectureService_CountByStatus(t *testing.T) {
	store := newMemLectureStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.CreateLecture(ctx, id)
		require.NoError(t, err)
	}
	_, err := store.CompareAndSwapLectureStatus(ctx, "a", 0, models.StatusTranscribing)
	require.NoError(t, err)

	counts, err := NewLectureService(store).CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Importing": 2, "Transcribing": 1}, counts)
}
