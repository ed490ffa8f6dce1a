package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Embedding task types. Gemini tunes the vector differently for stored
// documents versus retrieval queries; mixing them up degrades similarity
// scores even though both calls return a valid vector.
const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

const defaultEmbedBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Embedder produces embeddings via the Gemini REST API.
type Embedder struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewEmbedder creates a Gemini embedding client.
func NewEmbedder(apiKey, model string) *Embedder {
	return &Embedder{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultEmbedBaseURL,
		client:  &http.Client{},
	}
}

type embedContentReq struct {
	Model    string       `json:"model"`
	Content  embedContent `json:"content"`
	TaskType string       `json:"taskType"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type embedContentResp struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedDocument embeds text for storage in the vector index.
func (e *Embedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, taskDocument)
}

// EmbedQuery embeds a search query for matching against stored documents.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, taskQuery)
}

func (e *Embedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	body, _ := json.Marshal(embedContentReq{
		Model:    "models/" + e.model,
		Content:  embedContent{Parts: []embedPart{{Text: text}}},
		TaskType: taskType,
	})

	url := fmt.Sprintf("%s/models/%s:embedContent", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gemini embed: status %d: %s", resp.StatusCode, detail)
	}

	var result embedContentResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("gemini embed decode: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	return result.Embedding.Values, nil
}
