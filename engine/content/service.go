package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recallhq/recall/engine/ai"
	"github.com/recallhq/recall/engine/semantic"
)

// Store is the primary relational store. It is authoritative for record
// existence; all vector state is derived from it.
type Store interface {
	Insert(ctx context.Context, r Record) (Record, error)
	GetByID(ctx context.Context, id int64) (*Record, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Record, error)
	List(ctx context.Context, f ListFilter) ([]Record, error)
	Update(ctx context.Context, id int64, p Patch) (*Record, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Indexer schedules (or performs) the embedding of a record into the vector
// index. The queued implementation enqueues a job and returns; the
// synchronous one embeds inline. Selected once at construction, never by
// runtime flag checks.
type Indexer interface {
	Reindex(ctx context.Context, rec Record) error
}

// VectorDeleter removes a record's point from the vector index.
type VectorDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// Service orchestrates content writes: primary-store mutation first, then
// embedding work via the configured Indexer. Reads never touch the index.
type Service struct {
	store    Store
	analyzer ai.Analyzer
	indexer  Indexer
	vectors  VectorDeleter
	logger   *slog.Logger
}

// NewService wires a content pipeline.
func NewService(store Store, analyzer ai.Analyzer, indexer Indexer, vectors VectorDeleter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		analyzer: analyzer,
		indexer:  indexer,
		vectors:  vectors,
		logger:   logger,
	}
}

// Create validates the request, categorizes it via the analyzer, persists
// the record and schedules embedding. It returns as soon as the record is
// durable: the item is immediately readable by ID and filterable, but only
// semantically searchable once its embedding job completes.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	if req.Content == "" && req.URL == "" && req.ImageURL == "" {
		return nil, fmt.Errorf("%w: one of content, url or imageUrl is required", ErrInvalidInput)
	}

	analysis := s.analyze(ctx, req)

	title := req.Title
	if title == "" {
		title = analysis.GeneratedTitle
	}
	description := req.Description
	if description == "" {
		description = analysis.GeneratedDescription
	}

	rec := Record{
		Type:        analysis.Type,
		Title:       title,
		Description: description,
		Content:     req.Content,
		URL:         req.URL,
		ImageURL:    req.ImageURL,
		Summary:     description,
		Metadata:    analysis.Metadata,
		MetaTags:    analysis.Metadata,
		Labels:      analysis.Labels,
	}

	created, err := s.store.Insert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: insert: %v", ErrStore, err)
	}

	if err := s.indexer.Reindex(ctx, created); err != nil {
		return nil, err
	}

	s.logger.Info("content created", "id", created.ID, "type", created.Type)
	return &created, nil
}

// analyze picks the analyzer call matching the content shape. Analysis
// failures degrade to the uncategorized default; a write never fails because
// categorization did.
func (s *Service) analyze(ctx context.Context, req CreateRequest) ai.Analysis {
	var (
		analysis ai.Analysis
		err      error
		fallback string
	)
	switch {
	case req.ImageURL != "":
		fallback = "image"
		// Known limitation: the URL is handed over as if it were the image
		// payload, so remote images are not fetched and analysis degrades to
		// the fallback. Fixing this needs a download step with size and
		// content-type limits.
		analysis, err = s.analyzer.AnalyzeImage(ctx, req.ImageURL, "image/jpeg")
	case req.URL != "" && req.Content == "":
		fallback = "link"
		analysis, err = s.analyzer.AnalyzeURL(ctx, req.URL, req.Content)
	default:
		fallback = "text"
		analysis, err = s.analyzer.AnalyzeText(ctx, req.Content, req.Title, req.Description)
	}
	if err != nil {
		s.logger.Warn("analysis failed, using default categorization", "err", err)
		return ai.FallbackAnalysis(fallback)
	}
	return analysis
}

// Get returns a record by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get %d: %v", ErrStore, id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: content %d", ErrNotFound, id)
	}
	return rec, nil
}

// List returns records matching the filter, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Record, error) {
	recs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStore, err)
	}
	return recs, nil
}

// Update applies a partial update. If any text-affecting field changed, a
// fresh embedding is scheduled with the post-update snapshot; serving the
// stale vector without a superseding job in flight would violate the
// eventual-consistency contract.
func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Record, error) {
	updated, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, fmt.Errorf("%w: update %d: %v", ErrStore, id, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: content %d", ErrNotFound, id)
	}

	if p.TouchesText() {
		if err := s.indexer.Reindex(ctx, *updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Delete removes a record. The primary-store delete is authoritative; the
// vector delete is best-effort and a failure there only leaves an orphaned
// point that can never be hydrated.
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete %d: %v", ErrStore, id, err)
	}
	if !deleted {
		return fmt.Errorf("%w: content %d", ErrNotFound, id)
	}

	if err := s.vectors.Delete(ctx, id); err != nil {
		s.logger.Warn("vector delete failed, record deleted anyway", "id", id, "err", err)
	}
	return nil
}

// Enqueuer hands an embedding job snapshot to the job queue. Enqueue must
// not block on embedding work.
type Enqueuer interface {
	Enqueue(ctx context.Context, id int64, fields EmbedFields) error
}

// QueuedIndexer schedules embedding through the job queue. This is the
// production path: writes stay fast and the worker pool absorbs oracle
// latency and rate limits.
type QueuedIndexer struct {
	queue Enqueuer
}

// NewQueuedIndexer creates the queue-backed indexing strategy.
func NewQueuedIndexer(queue Enqueuer) *QueuedIndexer {
	return &QueuedIndexer{queue: queue}
}

func (q *QueuedIndexer) Reindex(ctx context.Context, rec Record) error {
	if err := q.queue.Enqueue(ctx, rec.ID, Snapshot(rec)); err != nil {
		return fmt.Errorf("enqueue embedding job for %d: %w", rec.ID, err)
	}
	return nil
}

// VectorWriter upserts embeddings into the vector index.
type VectorWriter interface {
	Upsert(ctx context.Context, rec semantic.VectorRecord) error
}

// SyncIndexer embeds and upserts inline, making the caller wait for the
// oracle. Legacy path, useful for tooling and tests that need the vector to
// exist before returning.
type SyncIndexer struct {
	embedder ai.Embedder
	vectors  VectorWriter
}

// NewSyncIndexer creates the synchronous indexing strategy.
func NewSyncIndexer(embedder ai.Embedder, vectors VectorWriter) *SyncIndexer {
	return &SyncIndexer{embedder: embedder, vectors: vectors}
}

func (s *SyncIndexer) Reindex(ctx context.Context, rec Record) error {
	combined := CombineForEmbedding(Snapshot(rec))
	if strings.TrimSpace(combined) == "" {
		return fmt.Errorf("%w: record %d has no embeddable text", ErrInvalidInput, rec.ID)
	}

	vector, err := s.embedder.EmbedDocument(ctx, combined)
	if err != nil {
		return fmt.Errorf("%w: embed %d: %v", ErrOracle, rec.ID, err)
	}

	err = s.vectors.Upsert(ctx, semantic.VectorRecord{
		ID:           rec.ID,
		Vector:       vector,
		Title:        rec.Title,
		Type:         rec.Type,
		Labels:       rec.Labels,
		CombinedText: combined,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d: %v", ErrIndex, rec.ID, err)
	}
	return nil
}
