// Package rag implements semantic search and grounded question answering
// over the content store. Search embeds the query, matches against the
// vector index and hydrates full records from the primary store; Answer
// feeds the hydrated matches to the generator as explicit context.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/recallhq/recall/engine/ai"
	"github.com/recallhq/recall/engine/content"
	"github.com/recallhq/recall/engine/semantic"
)

// NoAnswerText is returned when no stored content matches the query.
// The generator is never called in that case; an empty context would only
// invite fabrication.
const NoAnswerText = "I couldn't find any relevant information in your saved content to answer that question."

const (
	// DefaultLimit is the number of matches returned when the caller does
	// not specify one.
	DefaultLimit = 10
	// DefaultThreshold filters out weak matches in the vector index.
	DefaultThreshold = 0.5
)

// Searcher is the vector index slice the engine needs.
type Searcher interface {
	Search(ctx context.Context, vector []float32, q semantic.Query) ([]semantic.Hit, error)
}

// Hydrator fetches full records for matched IDs in one batch.
type Hydrator interface {
	GetByIDs(ctx context.Context, ids []int64) ([]content.Record, error)
}

// Options scope a search. Zero values take the defaults.
type Options struct {
	Limit     int
	Threshold float32
	Type      string
	Labels    []string
}

// ScoredRecord is a full content record with its similarity score.
type ScoredRecord struct {
	content.Record
	Score float32
}

// Source identifies a record that grounded an answer.
type Source struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	URL         string  `json:"url,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Description string  `json:"description,omitempty"`
	Score       float32 `json:"score"`
}

// Answer is a generated response plus the records it was grounded on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Engine runs semantic search and answer generation.
type Engine struct {
	embedder  ai.Embedder
	generator ai.Generator
	index     Searcher
	store     Hydrator
	logger    *slog.Logger
}

// New wires a search engine.
func New(embedder ai.Embedder, generator ai.Generator, index Searcher, store Hydrator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		generator: generator,
		index:     index,
		store:     store,
		logger:    logger,
	}
}

// Search embeds the query in retrieval mode, matches against the vector
// index and hydrates full records. Results are ordered by descending
// similarity; IDs present in the index but missing from the primary store
// are dropped.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]ScoredRecord, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", content.ErrInvalidInput)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", content.ErrOracle, err)
	}

	hits, err := e.index.Search(ctx, vector, semantic.Query{
		Limit:          limit,
		ScoreThreshold: threshold,
		Type:           opts.Type,
		Labels:         opts.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", content.ErrIndex, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	scores := make(map[int64]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}

	recs, err := e.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: hydrate results: %v", content.ErrStore, err)
	}
	if dropped := len(hits) - len(recs); dropped > 0 {
		e.logger.Warn("vector hits missing from store", "dropped", dropped)
	}

	results := make([]ScoredRecord, 0, len(recs))
	for _, rec := range recs {
		results = append(results, ScoredRecord{Record: rec, Score: scores[rec.ID]})
	}
	// Hydration does not preserve index order.
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	return results, nil
}

// Ask searches and then generates an answer grounded in the matched
// records. With no matches it returns the fixed no-answer response without
// calling the generator. Generation failures are hard errors: a degraded
// or fabricated answer is worse than none.
func (e *Engine) Ask(ctx context.Context, query string, opts Options) (*Answer, error) {
	results, err := e.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &Answer{Text: NoAnswerText, Sources: []Source{}}, nil
	}

	text, err := e.generator.GenerateAnswer(ctx, query, buildContextBlocks(results))
	if err != nil {
		return nil, fmt.Errorf("%w: generate answer: %v", content.ErrOracle, err)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			ID:          r.ID,
			Title:       r.Title,
			Type:        r.Type,
			URL:         r.URL,
			ImageURL:    r.ImageURL,
			Description: r.Description,
			Score:       r.Score,
		}
	}
	return &Answer{Text: text, Sources: sources}, nil
}

// buildContextBlocks renders matched records as numbered context documents
// for the generator prompt.
func buildContextBlocks(results []ScoredRecord) []string {
	blocks := make([]string, len(results))
	for i, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "Document %d:\n", i+1)
		if r.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", r.Title)
		}
		fmt.Fprintf(&b, "Type: %s\n", r.Type)
		if r.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", r.Description)
		}
		if r.Content != "" {
			fmt.Fprintf(&b, "Content: %s\n", r.Content)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", r.URL)
		}
		if len(r.Labels) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(r.Labels, ", "))
		}
		blocks[i] = b.String()
	}
	return blocks
}
