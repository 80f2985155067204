// Package main provides the askmycourse HTTP server and stage job scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/askmycourse/internal/config"
	"github.com/raphaelgruber/askmycourse/internal/db"
	"github.com/raphaelgruber/askmycourse/internal/history"
	"github.com/raphaelgruber/askmycourse/internal/index"
	"github.com/raphaelgruber/askmycourse/internal/llm"
	"github.com/raphaelgruber/askmycourse/internal/media"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/server"
	"github.com/raphaelgruber/askmycourse/internal/service"
	"github.com/tmc/langchaingo/vectorstores"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	if err := run(*wipeDB || os.Getenv("ASKMYCOURSE_WIPE_DB") == "true"); err != nil {
		slog.Error("askmycourse-server failed", "error", err)
		os.Exit(1)
	}
}

func run(wipe bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("askmycourse-server starting",
		"version", version,
		"index_name", cfg.IndexName,
		"surrealdb_url", cfg.SurrealDBURL,
		"llm", fmt.Sprintf("%s/%s", cfg.LLMProvider, cfg.LLMModel),
		"embedding", fmt.Sprintf("%s/%s", cfg.EmbedProvider, cfg.EmbedModel),
		"vector_backend", cfg.VectorBackend,
		"history_backend", cfg.HistoryBackend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector()

	// Database
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, collector)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = dbClient.Close(context.Background()) }()

	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		return fmt.Errorf("initialize database schema: %w", err)
	}
	if wipe {
		if err := dbClient.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
	}

	// Models
	embedder, err := llm.NewEmbedder(ctx, cfg, collector)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	model, err := llm.NewModel(ctx, cfg, collector)
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	logger.Info("models initialized", "llm", model.Model(), "embedder", embedder.Model(), "dimension", embedder.Dimension())

	// Pluggable stores
	vectorIndex, closeIndex, err := openVectorIndex(ctx, cfg, dbClient, embedder, collector)
	if err != nil {
		return err
	}
	defer closeIndex()

	chatHistory, closeHistory, err := openHistory(cfg, dbClient, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.RedisURL != "" {
		redisNotifier, err := service.NewRedisNotifier(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		notifier = redisNotifier
		logger.Info("job notifications via redis", "channel", service.JobsChannel)
	}
	defer func() { _ = notifier.Close() }()

	// Services
	jobs := service.NewJobManager(dbClient, cfg.Workers, cfg.PollInterval, notifier, collector)
	youtube := media.NewYouTube(cfg.MediaDir)
	pipeline := service.NewPipeline(service.PipelineConfig{
		Lectures:    dbClient,
		Transcripts: dbClient,
		Index:       vectorIndex,
		Importer:    youtube,
		Titles:      youtube,
		Transcriber: media.NewWhisper(media.WhisperConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.WhisperBaseURL,
			Model:   cfg.WhisperModel,
		}, collector),
		Jobs:      jobs,
		IndexName: cfg.IndexName,
	})
	qa := service.NewQAEngine(service.QAConfig{
		History:          chatHistory,
		Index:            vectorIndex,
		Generator:        model,
		IndexName:        cfg.IndexName,
		DefaultSessionID: cfg.DefaultChatSessionID,
		TopK:             cfg.TopK,
	})

	if err := jobs.Recover(ctx); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Ingest:   pipeline,
		Lectures: service.NewLectureService(dbClient),
		QA:       qa,
		Jobs:     jobs,
		Metrics:  collector,
		Logger:   logger,
		Store:    dbClient,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return jobs.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx, ":"+cfg.ServerPort) })

	logger.Info("server ready", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// openVectorIndex returns the configured vector index and a function releasing it.
func openVectorIndex(ctx context.Context, cfg config.Config, dbClient *db.Client, embedder *llm.Embedder, collector *metrics.Collector) (vectorstores.VectorStore, func(), error) {
	switch cfg.VectorBackend {
	case config.BackendPGVector:
		store, err := index.NewPGVectorStore(ctx, cfg.PGVectorDSN, embedder, cfg.IndexName, cfg.EmbedDimension, collector)
		if err != nil {
			return nil, nil, fmt.Errorf("open pgvector index: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return index.NewSurrealStore(dbClient, embedder, cfg.IndexName), func() {}, nil
	}
}

// openHistory returns the configured chat history store and a function releasing it.
func openHistory(cfg config.Config, dbClient *db.Client, logger *slog.Logger) (history.Store, func(), error) {
	switch cfg.HistoryBackend {
	case config.BackendSQLite:
		store, err := history.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return history.NewSurrealStore(dbClient), func() {}, nil
	}
}
