package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/raphaelgruber/askmycourse/internal/db"
	"github.com/raphaelgruber/askmycourse/internal/media"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/raphaelgruber/askmycourse/internal/parser"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Stage job methods.
const (
	MethodImportLecture     = "import_lecture"
	MethodTranscribeLecture = "transcribe_lecture"
	MethodTranscribeAudio   = "transcribe_audio"
	MethodIndexLecture      = "index_lecture"
)

// maxStatusAttempts bounds compare-and-swap retries on a lecture status write.
const maxStatusAttempts = 5

var (
	// ErrInvalidURL is returned for an empty or unparseable video reference.
	ErrInvalidURL = errors.New("invalid video url")

	// ErrInvalidTransition is returned when a status write would skip a stage.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PipelineConfig wires the ingestion pipeline.
type PipelineConfig struct {
	Lectures    LectureStore
	Transcripts TranscriptStore
	Index       vectorstores.VectorStore
	Importer    media.Importer
	Titles      media.TitleResolver
	Transcriber media.Transcriber
	Jobs        *JobManager
	IndexName   string
	Chunking    parser.ChunkConfig
}

// Pipeline ingests lectures: import, then transcribe, then chunk and index.
// Each stage runs as a stage job scheduled after the one before it.
type Pipeline struct {
	lectures    LectureStore
	transcripts TranscriptStore
	index       vectorstores.VectorStore
	importer    media.Importer
	titles      media.TitleResolver
	transcriber media.Transcriber
	jobs        *JobManager
	indexName   string
	chunking    parser.ChunkConfig
}

// NewPipeline creates the pipeline and registers its stage handlers with cfg.Jobs.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking = parser.DefaultChunkConfig()
	}
	p := &Pipeline{
		lectures:    cfg.Lectures,
		transcripts: cfg.Transcripts,
		index:       cfg.Index,
		importer:    cfg.Importer,
		titles:      cfg.Titles,
		transcriber: cfg.Transcriber,
		jobs:        cfg.Jobs,
		indexName:   cfg.IndexName,
		chunking:    cfg.Chunking,
	}
	p.jobs.Register(MethodImportLecture, p.importLecture)
	p.jobs.Register(MethodTranscribeLecture, p.transcribeLecture)
	p.jobs.Register(MethodTranscribeAudio, p.transcribeAudio)
	p.jobs.Register(MethodIndexLecture, p.indexLecture)
	return p
}

// AddLecture creates the lecture record, submits the import and schedules the
// transcribe stage after it. Returns the lecture's file ID without waiting.
func (p *Pipeline) AddLecture(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	fileID := uuid.New().String()
	if _, err := p.lectures.CreateLecture(ctx, fileID); err != nil {
		return "", fmt.Errorf("create lecture: %w", err)
	}

	importJob, err := p.jobs.Submit(ctx, MethodImportLecture, map[string]any{
		"file_id": fileID,
		"url":     url,
	})
	if err != nil {
		return "", err
	}

	if _, err := p.jobs.Submit(ctx, MethodTranscribeLecture, map[string]any{
		"task_id": importJob,
		"source":  url,
	}, importJob); err != nil {
		return "", err
	}

	slog.Info("lecture added", "file_id", fileID, "source", url, "import_job", importJob)
	return fileID, nil
}

// importLecture downloads the media and attaches it to the lecture.
func (p *Pipeline) importLecture(ctx context.Context, job *models.StageJob) (map[string]any, error) {
	fileID := job.ArgString("file_id")
	url := job.ArgString("url")
	if fileID == "" || url == "" {
		return nil, fmt.Errorf("import lecture: missing file_id or url")
	}

	imported, err := p.importer.Import(ctx, fileID, url)
	if err != nil {
		return nil, fmt.Errorf("import lecture: %w", err)
	}
	if err := p.lectures.SetLectureMedia(ctx, fileID, imported.Path); err != nil {
		return nil, fmt.Errorf("import lecture: %w", err)
	}

	return fileOutput(fileID, map[string]any{"mime_type": imported.MimeType}), nil
}

// transcribeLecture resolves the title, marks the lecture Transcribing and
// schedules transcription followed by indexing.
// A failed title lookup fails the stage before anything is written.
func (p *Pipeline) transcribeLecture(ctx context.Context, job *models.StageJob) (map[string]any, error) {
	source := job.ArgString("source")
	fileID, err := p.fileIDFromTask(ctx, job.ArgString("task_id"))
	if err != nil {
		return nil, fmt.Errorf("transcribe lecture: %w", err)
	}

	title, err := p.titles.ResolveTitle(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("transcribe lecture: resolve title: %w", err)
	}

	if err := p.lectures.SetLectureMetadata(ctx, fileID, source, title); err != nil {
		return nil, fmt.Errorf("transcribe lecture: %w", err)
	}
	if err := p.setStatus(ctx, fileID, models.StatusTranscribing); err != nil {
		return nil, fmt.Errorf("transcribe lecture: %w", err)
	}

	transcribeJob, err := p.jobs.Submit(ctx, MethodTranscribeAudio, map[string]any{"file_id": fileID})
	if err != nil {
		return nil, fmt.Errorf("transcribe lecture: %w", err)
	}
	indexJob, err := p.jobs.Submit(ctx, MethodIndexLecture, map[string]any{
		"task_id": transcribeJob,
		"source":  source,
	}, transcribeJob)
	if err != nil {
		return nil, fmt.Errorf("transcribe lecture: %w", err)
	}

	return fileOutput(fileID, map[string]any{
		"title":          title,
		"transcribe_job": transcribeJob,
		"index_job":      indexJob,
	}), nil
}

// transcribeAudio runs speech-to-text and stores the tokens durably.
func (p *Pipeline) transcribeAudio(ctx context.Context, job *models.StageJob) (map[string]any, error) {
	fileID := job.ArgString("file_id")
	lecture, err := p.lectures.GetLecture(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("transcribe audio: %w", err)
	}
	if lecture == nil {
		return nil, fmt.Errorf("transcribe audio %s: %w", fileID, db.ErrNotFound)
	}
	if lecture.MediaPath == nil {
		return nil, fmt.Errorf("transcribe audio %s: no imported media", fileID)
	}

	tokens, err := p.transcriber.Transcribe(ctx, *lecture.MediaPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe audio: %w", err)
	}
	if err := p.transcripts.SaveTranscript(ctx, fileID, tokens); err != nil {
		return nil, fmt.Errorf("transcribe audio: %w", err)
	}

	return fileOutput(fileID, map[string]any{"tokens": len(tokens)}), nil
}

// indexLecture chunks the stored transcript and adds the chunks to the vector index.
func (p *Pipeline) indexLecture(ctx context.Context, job *models.StageJob) (map[string]any, error) {
	source := job.ArgString("source")
	fileID, err := p.fileIDFromTask(ctx, job.ArgString("task_id"))
	if err != nil {
		return nil, fmt.Errorf("index lecture: %w", err)
	}

	if err := p.setStatus(ctx, fileID, models.StatusIndexing); err != nil {
		return nil, fmt.Errorf("index lecture: %w", err)
	}

	tokens, err := p.transcripts.GetTranscript(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("index lecture: %w", err)
	}
	parser.SortTokens(tokens)

	chunks := parser.ChunkTokens(source, tokens, p.chunking)
	docs := make([]schema.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = c.Schema()
	}

	ids, err := p.index.AddDocuments(ctx, docs, vectorstores.WithNameSpace(p.indexName))
	if err != nil {
		return nil, fmt.Errorf("index lecture: %d of %d chunks stored: %w", len(ids), len(docs), err)
	}

	if err := p.setStatus(ctx, fileID, models.StatusIndexed); err != nil {
		return nil, fmt.Errorf("index lecture: %w", err)
	}

	slog.Info("lecture indexed", "file_id", fileID, "tokens", len(tokens), "chunks", len(ids))
	return fileOutput(fileID, map[string]any{"chunks": len(ids)}), nil
}

// fileIDFromTask reads the lecture file ID from a finished job's output.
func (p *Pipeline) fileIDFromTask(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("missing task_id")
	}
	task, err := p.jobs.Get(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		return "", fmt.Errorf("task %s: %w", taskID, db.ErrNotFound)
	}
	id := nestedString(task.Output, "file", "id")
	if id == "" {
		return "", fmt.Errorf("task %s output has no file id", taskID)
	}
	return id, nil
}

// setStatus advances the lecture status with compare-and-swap, retrying on
// version conflicts. Writing a status the lecture already reached is a no-op.
func (p *Pipeline) setStatus(ctx context.Context, fileID string, status models.LectureStatus) error {
	for attempt := 1; ; attempt++ {
		lecture, err := p.lectures.GetLecture(ctx, fileID)
		if err != nil {
			return err
		}
		if lecture == nil {
			return fmt.Errorf("set status %s: %w", fileID, db.ErrNotFound)
		}

		current := statusRank(lecture.Status)
		target := statusRank(&status)
		if current >= target {
			slog.Debug("lecture status already reached", "file_id", fileID, "status", lecture.StatusName(), "requested", status)
			return nil
		}
		if target != current+1 {
			return fmt.Errorf("%w: %q to %q", ErrInvalidTransition, lecture.StatusName(), status)
		}

		_, err = p.lectures.CompareAndSwapLectureStatus(ctx, fileID, lecture.Version, status)
		if err == nil {
			slog.Info("lecture status changed", "file_id", fileID, "status", status)
			return nil
		}
		if !errors.Is(err, db.ErrVersionConflict) || attempt >= maxStatusAttempts {
			return err
		}
		slog.Debug("lecture status conflict, retrying", "file_id", fileID, "attempt", attempt)
	}
}

// statusRank orders statuses along the ingestion state machine. No status ranks 0.
func statusRank(s *models.LectureStatus) int {
	if s == nil {
		return 0
	}
	switch *s {
	case models.StatusTranscribing:
		return 1
	case models.StatusIndexing:
		return 2
	case models.StatusIndexed:
		return 3
	default:
		return 0
	}
}

func fileOutput(fileID string, extra map[string]any) map[string]any {
	file := map[string]any{"id": fileID}
	for k, v := range extra {
		file[k] = v
	}
	return map[string]any{"file": file}
}

// nestedString follows keys through decoded objects and returns the string at the end.
func nestedString(m map[string]any, keys ...string) string {
	var cur any = m
	for _, k := range keys {
		switch obj := cur.(type) {
		case map[string]any:
			cur = obj[k]
		case map[any]any:
			cur = obj[k]
		default:
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}
