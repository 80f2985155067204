package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/db"
	"github.com/raphaelgruber/askmycourse/internal/media"
	"github.com/raphaelgruber/askmycourse/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// memJobStore is an in-memory JobStore.
type memJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*models.StageJob
	order []string
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]*models.StageJob{}}
}

func (s *memJobStore) CreateStageJob(_ context.Context, id, method string, args map[string]any, waitOn []string) (*models.StageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return nil, db.ErrAlreadyExists
	}
	job := &models.StageJob{
		ID:        surrealmodels.NewRecordID("stage_job", id),
		Method:    method,
		Args:      args,
		WaitOn:    append([]string{}, waitOn...),
		Status:    models.JobStatusPending,
		CreatedAt: time.Now(),
	}
	s.jobs[id] = job
	s.order = append(s.order, id)
	cp := *job
	return &cp, nil
}

func (s *memJobStore) GetStageJob(_ context.Context, id string) (*models.StageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) GetStageJobs(_ context.Context, ids []string) ([]models.StageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StageJob
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *memJobStore) ListPendingStageJobs(_ context.Context, limit int) ([]models.StageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StageJob
	for _, id := range s.order {
		if job := s.jobs[id]; job.Status == models.JobStatusPending && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *memJobStore) ListStageJobs(_ context.Context, limit int) ([]models.StageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StageJob
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.jobs[s.order[i]])
	}
	return out, nil
}

func (s *memJobStore) ClaimStageJob(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusPending {
		return false, nil
	}
	now := time.Now()
	job.Status = models.JobStatusRunning
	job.Attempts++
	job.StartedAt = &now
	return true, nil
}

func (s *memJobStore) CompleteStageJob(_ context.Context, id string, output map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return db.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.Output = output
	job.CompletedAt = &now
	return nil
}

func (s *memJobStore) FailStageJob(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return db.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.Error = &message
	job.CompletedAt = &now
	return nil
}

func (s *memJobStore) ResetRunningStageJobs(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == models.JobStatusRunning {
			job.Status = models.JobStatusPending
			job.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *memJobStore) byMethod(method string) []models.StageJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StageJob
	for _, id := range s.order {
		if s.jobs[id].Method == method {
			out = append(out, *s.jobs[id])
		}
	}
	return out
}

// memLectureStore is an in-memory LectureStore and TranscriptStore.
type memLectureStore struct {
	mu          sync.Mutex
	lectures    map[string]*models.Lecture
	transcripts map[string][]models.Token
	conflicts   int // number of CAS calls to reject before accepting
}

func newMemLectureStore() *memLectureStore {
	return &memLectureStore{
		lectures:    map[string]*models.Lecture{},
		transcripts: map[string][]models.Token{},
	}
}

func (s *memLectureStore) CreateLecture(_ context.Context, fileID string) (*models.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &models.Lecture{ID: surrealmodels.NewRecordID("lecture", fileID), CreatedAt: time.Now()}
	s.lectures[fileID] = l
	cp := *l
	return &cp, nil
}

func (s *memLectureStore) GetLecture(_ context.Context, fileID string) (*models.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lectures[fileID]
	if !ok {
		return nil, nil
	}
	cp := *l
	cp.StatusHistory = slices.Clone(l.StatusHistory)
	return &cp, nil
}

func (s *memLectureStore) SetLectureMetadata(_ context.Context, fileID, source, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lectures[fileID]
	if !ok {
		return db.ErrNotFound
	}
	l.Source, l.Title = &source, &title
	return nil
}

func (s *memLectureStore) SetLectureMedia(_ context.Context, fileID, mediaPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lectures[fileID]
	if !ok {
		return db.ErrNotFound
	}
	l.MediaPath = &mediaPath
	return nil
}

func (s *memLectureStore) CompareAndSwapLectureStatus(_ context.Context, fileID string, expectedVersion int, status models.LectureStatus) (*models.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lectures[fileID]
	if !ok {
		return nil, db.ErrNotFound
	}
	if s.conflicts > 0 {
		s.conflicts--
		l.Version++ // a concurrent writer got there first
		return nil, db.ErrVersionConflict
	}
	if l.Version != expectedVersion {
		return nil, db.ErrVersionConflict
	}
	l.Status = &status
	l.Version++
	l.StatusHistory = append(l.StatusHistory, models.StatusChange{Status: status, At: time.Now()})
	cp := *l
	return &cp, nil
}

func (s *memLectureStore) ListLectures(_ context.Context) ([]models.Lecture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lecture
	for _, l := range s.lectures {
		if l.Source != nil && l.Status != nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *memLectureStore) CountLecturesByStatus(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for _, l := range s.lectures {
		name := "Importing"
		if l.Status != nil {
			name = string(*l.Status)
		}
		out[name]++
	}
	return out, nil
}

func (s *memLectureStore) SaveTranscript(_ context.Context, fileID string, tokens []models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[fileID] = slices.Clone(tokens)
	return nil
}

func (s *memLectureStore) GetTranscript(_ context.Context, fileID string) ([]models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, ok := s.transcripts[fileID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return slices.Clone(tokens), nil
}

func (s *memLectureStore) lecture(fileID string) models.Lecture {
	l, _ := s.GetLecture(context.Background(), fileID)
	return *l
}

// fakeMedia implements Importer, TitleResolver and Transcriber.
type fakeMedia struct {
	titleErr error
	tokens   []models.Token
}

func (f *fakeMedia) Import(_ context.Context, fileID, _ string) (media.ImportedMedia, error) {
	return media.ImportedMedia{Path: "/media/" + fileID + ".m4a", MimeType: "audio/mp4"}, nil
}

func (f *fakeMedia) ResolveTitle(_ context.Context, source string) (string, error) {
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return "Title of " + source, nil
}

func (f *fakeMedia) Transcribe(_ context.Context, _ string) ([]models.Token, error) {
	return slices.Clone(f.tokens), nil
}

// memIndex is an in-memory vector store ranking documents by shared words with the query.
type memIndex struct {
	mu      sync.Mutex
	docs    map[string][]schema.Document
	queries []string
}

func newMemIndex() *memIndex {
	return &memIndex{docs: map[string][]schema.Document{}}
}

func (x *memIndex) AddDocuments(_ context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
	o := vectorstores.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]string, len(docs))
	for i, d := range docs {
		x.docs[o.NameSpace] = append(x.docs[o.NameSpace], d)
		ids[i] = fmt.Sprintf("%s-%d", o.NameSpace, len(x.docs[o.NameSpace]))
	}
	return ids, nil
}

func (x *memIndex) SimilaritySearch(_ context.Context, query string, k int, opts ...vectorstores.Option) ([]schema.Document, error) {
	o := vectorstores.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.queries = append(x.queries, query)

	var out []schema.Document
	for _, d := range x.docs[o.NameSpace] {
		for _, w := range strings.Fields(strings.ToLower(query)) {
			if strings.Contains(strings.ToLower(d.PageContent), w) {
				out = append(out, d)
				break
			}
		}
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (x *memIndex) count(namespace string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.docs[namespace])
}

// fakeGenerator records calls.
type fakeGenerator struct {
	mu            sync.Mutex
	condensed     string
	answer        string
	err           error
	condenseCalls int
	answerCalls   int
	lastDocs      []models.Document
}

func (g *fakeGenerator) Condense(_ context.Context, _ []models.ChatTurn, question string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.condenseCalls++
	if g.condensed == "" {
		return question, nil
	}
	return g.condensed, nil
}

func (g *fakeGenerator) Answer(_ context.Context, _ string, docs []models.Document) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answerCalls++
	g.lastDocs = docs
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

// memHistory is an in-memory history.Store.
type memHistory struct {
	mu    sync.Mutex
	turns map[string][]models.ChatTurn
}

func newMemHistory() *memHistory {
	return &memHistory{turns: map[string][]models.ChatTurn{}}
}

func (h *memHistory) Load(_ context.Context, sessionID string) ([]models.ChatTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.turns[sessionID]), nil
}

func (h *memHistory) Append(_ context.Context, sessionID, question, answer string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[sessionID] = append(h.turns[sessionID], models.ChatTurn{
		SessionID: sessionID,
		Position:  len(h.turns[sessionID]),
		Question:  question,
		Answer:    answer,
	})
	return nil
}

var errBoom = errors.New("boom")
