package ai

import (
	"context"

	"github.com/recallhq/recall/pkg/resilience"
)

// BreakerEmbedder wraps an Embedder with a circuit breaker. Document and
// query embeddings hit the same upstream, so one breaker covers both.
type BreakerEmbedder struct {
	inner   Embedder
	breaker *resilience.Breaker
}

// NewBreakerEmbedder protects an embedder with the given breaker.
func NewBreakerEmbedder(inner Embedder, breaker *resilience.Breaker) *BreakerEmbedder {
	return &BreakerEmbedder{inner: inner, breaker: breaker}
}

func (e *BreakerEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return resilience.Do(e.breaker, ctx, func(ctx context.Context) ([]float32, error) {
		return e.inner.EmbedDocument(ctx, text)
	})
}

func (e *BreakerEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return resilience.Do(e.breaker, ctx, func(ctx context.Context) ([]float32, error) {
		return e.inner.EmbedQuery(ctx, text)
	})
}
