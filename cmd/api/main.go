// Package main implements the Recall API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/recallhq/recall/engine/ai"
	"github.com/recallhq/recall/engine/ai/gemini"
	"github.com/recallhq/recall/engine/content"
	"github.com/recallhq/recall/engine/jobs"
	"github.com/recallhq/recall/engine/rag"
	"github.com/recallhq/recall/engine/semantic"
	"github.com/recallhq/recall/pkg/metrics"
	"github.com/recallhq/recall/pkg/mid"
	"github.com/recallhq/recall/pkg/resilience"
	"github.com/recallhq/recall/pkg/store"
)

// EmbeddingDims is the vector size produced by the embedding model.
const EmbeddingDims = 768

// Config holds all environment-based configuration.
type Config struct {
	Port          string
	DBPath        string
	QdrantURL     string
	Collection    string
	NatsURL       string
	GeminiAPIKey  string
	SyncEmbedding bool
	CORSOrigin    string
}

func loadConfig() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		DBPath:        envOr("DB_PATH", "recall.db"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "content_embeddings"),
		NatsURL:       envOr("NATS_URL", nats.DefaultURL),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		SyncEmbedding: envOr("SYNC_EMBEDDING", "false") == "true",
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Primary store (SQLite) ---
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// --- Vector index (Qdrant) ---
	vectors, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	if err := vectors.EnsureCollection(ctx, EmbeddingDims); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	// --- Oracle (Gemini) ---
	provider, err := gemini.NewProvider(ctx, gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("gemini provider: %w", err)
	}
	defer provider.Close()

	embedder := ai.NewBreakerEmbedder(provider.Embedder(),
		resilience.NewBreaker(resilience.DefaultBreakerOpts))

	reg := metrics.New()

	// --- Embedding pipeline ---
	var (
		indexer   content.Indexer
		failedLog = jobs.NewFailedLog()
	)
	if cfg.SyncEmbedding {
		logger.Info("embedding mode: synchronous")
		indexer = content.NewSyncIndexer(embedder, vectors)
	} else {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()

		worker := jobs.NewWorker(jobs.Deps{
			Embedder: embedder,
			Vectors:  vectors,
			Metrics:  reg,
			Logger:   logger,
		}, jobs.DefaultOptions())
		if _, err := worker.Start(nc); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer worker.Drain()

		if _, err := failedLog.Start(nc); err != nil {
			return fmt.Errorf("start failed-job log: %w", err)
		}

		indexer = content.NewQueuedIndexer(jobs.NewQueue(nc))
		logger.Info("embedding mode: queued", "subject", jobs.JobsSubject)
	}

	// --- Services ---
	contentSvc := content.NewService(db, provider.Analyzer(), indexer, vectors, logger)
	ragEngine := rag.New(embedder, provider.Generator(), vectors, db, logger)

	// --- HTTP server ---
	api := &server{
		content: contentSvc,
		rag:     ragEngine,
		failed:  failedLog,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/content", api.handleCreate)
	mux.HandleFunc("GET /api/content", api.handleList)
	mux.HandleFunc("GET /api/content/{id}", api.handleGet)
	mux.HandleFunc("PUT /api/content/{id}", api.handleUpdate)
	mux.HandleFunc("DELETE /api/content/{id}", api.handleDelete)
	mux.HandleFunc("GET /api/content/search", api.handleSearch)
	mux.HandleFunc("POST /api/content/search", api.handleAsk)
	mux.HandleFunc("GET /api/jobs/failed", api.handleFailedJobs)
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("recall-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
