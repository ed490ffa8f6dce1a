// Package gemini implements the analysis, embedding and generation
// interfaces on Google's Gemini API. Chat-style calls go through
// langchaingo; embeddings use the REST API directly because the task-type
// distinction between stored documents and queries is not expressible
// through the langchaingo embedding surface.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/recallhq/recall/engine/ai"
)

const (
	// DefaultModel handles analysis and answer generation.
	DefaultModel = "gemini-1.5-flash"
	// DefaultEmbedModel produces 768-dimensional vectors.
	DefaultEmbedModel = "text-embedding-004"
)

// Config holds Gemini connection settings.
type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
	Logger     *slog.Logger
}

// Provider bundles the Gemini-backed analyzer, embedder and generator. It
// satisfies ai.Provider.
type Provider struct {
	analyzer  *Analyzer
	embedder  *Embedder
	generator *Generator
}

// NewProvider connects to Gemini and builds the three components.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: connect: %w", err)
	}

	return &Provider{
		analyzer:  newAnalyzer(client, cfg.Logger.With("component", "gemini-analyzer")),
		embedder:  NewEmbedder(cfg.APIKey, cfg.EmbedModel),
		generator: newGenerator(client, cfg.Logger.With("component", "gemini-generator")),
	}, nil
}

func (p *Provider) Analyzer() ai.Analyzer   { return p.analyzer }
func (p *Provider) Embedder() ai.Embedder   { return p.embedder }
func (p *Provider) Generator() ai.Generator { return p.generator }

// Close releases provider resources. The HTTP-backed clients hold none.
func (p *Provider) Close() error { return nil }
