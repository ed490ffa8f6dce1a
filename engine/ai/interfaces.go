// Package ai defines the interfaces to the generative-AI services the
// pipeline consumes: content analysis, text embedding and grounded answer
// generation. Implementations live in subpackages (gemini) and must be safe
// for concurrent use.
package ai

import "context"

// Analysis is the structured result of categorizing a piece of content.
type Analysis struct {
	Type                 string         `json:"type"`
	Metadata             map[string]any `json:"metadata"`
	Labels               []string       `json:"labels"`
	GeneratedTitle       string         `json:"generatedTitle,omitempty"`
	GeneratedDescription string         `json:"generatedDescription,omitempty"`
}

// Analyzer categorizes content and extracts metadata and labels.
type Analyzer interface {
	// AnalyzeText categorizes free text. Title and description are optional
	// hints; when absent the analyzer generates them.
	AnalyzeText(ctx context.Context, text, title, description string) (Analysis, error)

	// AnalyzeImage categorizes an image given its base64 data and MIME type.
	AnalyzeImage(ctx context.Context, base64Data, mimeType string) (Analysis, error)

	// AnalyzeURL categorizes a link, optionally with a content preview.
	AnalyzeURL(ctx context.Context, url, preview string) (Analysis, error)
}

// Embedder produces fixed-dimension vectors for semantic similarity.
// Document and query embeddings use different task weightings and must not
// be interchanged.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator synthesizes an answer to a query grounded strictly in the
// provided context blocks.
type Generator interface {
	GenerateAnswer(ctx context.Context, query string, contextBlocks []string) (string, error)
}

// Provider aggregates the three services behind one lifecycle.
type Provider interface {
	Analyzer() Analyzer
	Embedder() Embedder
	Generator() Generator
	Close() error
}

// FallbackAnalysis is the safe default used when analysis fails: the write
// proceeds with an uncategorized record instead of failing the request.
func FallbackAnalysis(contentType string) Analysis {
	return Analysis{
		Type:     contentType,
		Metadata: map[string]any{},
		Labels:   []string{"uncategorized"},
	}
}
