// Package server exposes lecture ingestion and question answering over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/raphaelgruber/askmycourse/internal/service"
)

// Ingestor starts lecture ingestion. Implemented by *service.Pipeline.
type Ingestor interface {
	AddLecture(ctx context.Context, url string) (string, error)
}

// LectureReader lists lectures. Implemented by *service.LectureService.
type LectureReader interface {
	List(ctx context.Context) ([]models.LectureSummary, error)
	Get(ctx context.Context, fileID string) (*models.Lecture, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Answerer answers questions. Implemented by *service.QAEngine.
type Answerer interface {
	Answer(ctx context.Context, question, sessionID string) (*service.Answer, error)
	History(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
}

// Pinger reports whether a backing store is reachable. Implemented by *db.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobReader inspects stage jobs. Implemented by *service.JobManager.
type JobReader interface {
	Get(ctx context.Context, id string) (*models.StageJob, error)
	List(ctx context.Context, limit int) ([]models.StageJob, error)
}

// Config wires the server's dependencies.
type Config struct {
	Ingest   Ingestor
	Lectures LectureReader
	QA       Answerer
	Jobs     JobReader
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	// Store is checked by /health when set.
	Store Pinger

	// WatchInterval is how often /lectures/watch re-reads the lecture list.
	WatchInterval time.Duration
}

// Server serves the REST API and the lecture status feed.
type Server struct {
	ingest        Ingestor
	lectures      LectureReader
	qa            Answerer
	jobs          JobReader
	metrics       *metrics.Collector
	store         Pinger
	logger        *slog.Logger
	watchInterval time.Duration
	handler       http.Handler

	// Cancelled on shutdown; hijacked websocket connections outlive http.Server.Shutdown.
	watchCtx    context.Context
	cancelWatch context.CancelFunc
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = 2 * time.Second
	}
	s := &Server{
		ingest:        cfg.Ingest,
		lectures:      cfg.Lectures,
		qa:            cfg.QA,
		jobs:          cfg.Jobs,
		metrics:       cfg.Metrics,
		store:         cfg.Store,
		logger:        cfg.Logger,
		watchInterval: cfg.WatchInterval,
	}
	s.watchCtx, s.cancelWatch = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /lectures", s.handleListLectures)
	mux.HandleFunc("GET /lectures/watch", s.handleWatchLectures)
	mux.HandleFunc("GET /lectures/{id}", s.handleGetLecture)
	mux.HandleFunc("POST /add_lecture", s.handleAddLecture)
	mux.HandleFunc("POST /answer", s.handleAnswer)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /history/{session}", s.handleHistory)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /stats", s.handleStats)

	s.handler = LoggingMiddleware(s.logger)(mux)
	return s
}

// Handler returns the root handler with logging applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // Long for LLM responses
		IdleTimeout:       120 * time.Second,
	}
	httpServer.RegisterOnShutdown(s.cancelWatch)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
