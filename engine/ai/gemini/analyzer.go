package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/recallhq/recall/engine/ai"
)

// Analyzer categorizes content with Gemini. Callers treat a returned error
// as a signal to fall back to default categorization; the analyzer itself
// never fabricates a result.
type Analyzer struct {
	client llms.Model
	logger *slog.Logger
}

func newAnalyzer(client llms.Model, logger *slog.Logger) *Analyzer {
	return &Analyzer{client: client, logger: logger}
}

// analysisResponse matches the JSON shape the prompts request.
type analysisResponse struct {
	Type                 string         `json:"type"`
	Metadata             map[string]any `json:"metadata"`
	Labels               []string       `json:"labels"`
	GeneratedTitle       string         `json:"generatedTitle"`
	GeneratedDescription string         `json:"generatedDescription"`
}

// AnalyzeText categorizes free text and extracts metadata. When title or
// description are absent the model is asked to generate them.
func (a *Analyzer) AnalyzeText(ctx context.Context, text, title, description string) (ai.Analysis, error) {
	var b strings.Builder
	b.WriteString("Analyze the following content and provide a structured response in JSON format.\n\n")
	fmt.Fprintf(&b, "Content: %s\n", text)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	b.WriteString(`
Categorize this content and extract relevant information. Return a JSON object with this structure:
{
  "type": "category of content (e.g., article, note, code, recipe, tutorial, review, etc.)",
  "metadata": {
    "tags": array of relevant tags,
    "category": specific category within the type,
    "sentiment": positive/negative/neutral if applicable,
    "language": detected language
  },
  "labels": array of descriptive labels for categorization`)
	if title == "" {
		b.WriteString(`,
  "generatedTitle": "a concise title for this content"`)
	}
	if description == "" {
		b.WriteString(`,
  "generatedDescription": "a brief description of this content"`)
	}
	b.WriteString("\n}\n\nOnly return the JSON object, no additional text.\n")

	return a.generate(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(b.String())}},
	})
}

// AnalyzeImage categorizes an image supplied as base64 data.
func (a *Analyzer) AnalyzeImage(ctx context.Context, base64Data, mimeType string) (ai.Analysis, error) {
	data, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return ai.Analysis{}, fmt.Errorf("decode image data: %w", err)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	prompt := `Analyze this image and provide a structured response in JSON format.

Describe what you see and extract relevant information. Return a JSON object with this structure:
{
  "type": "image",
  "metadata": {
    "tags": array of visual tags describing what's in the image,
    "category": specific category (e.g., photo, diagram, screenshot, artwork, etc.),
    "colors": dominant colors in the image,
    "objects": array of objects detected,
    "scene": description of the scene
  },
  "labels": array of descriptive labels for categorization,
  "generatedTitle": "a concise title for this image",
  "generatedDescription": "a brief description of what's in the image"
}

Only return the JSON object, no additional text.
`

	return a.generate(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{
			llms.TextPart(prompt),
			llms.BinaryPart(mimeType, data),
		}},
	})
}

// AnalyzeURL categorizes a link, optionally with a fetched content preview.
func (a *Analyzer) AnalyzeURL(ctx context.Context, url, preview string) (ai.Analysis, error) {
	var b strings.Builder
	b.WriteString("Analyze the following URL and its content (if provided) to categorize and extract metadata.\n\n")
	fmt.Fprintf(&b, "URL: %s\n", url)
	if preview != "" {
		fmt.Fprintf(&b, "Content Preview: %s\n", preview)
	}
	b.WriteString(`
Categorize this URL and extract relevant information. Return a JSON object with this structure:
{
  "type": "category (e.g., article, video, product, documentation, etc.)",
  "metadata": {
    "tags": array of relevant tags,
    "domain": domain name,
    "category": specific category
  },
  "labels": array of descriptive labels,
  "generatedTitle": "a concise title based on the URL/content",
  "generatedDescription": "a brief description"
}

Only return the JSON object, no additional text.
`)

	return a.generate(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(b.String())}},
	})
}

func (a *Analyzer) generate(ctx context.Context, content []llms.MessageContent) (ai.Analysis, error) {
	resp, err := a.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		return ai.Analysis{}, fmt.Errorf("gemini analyze: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ai.Analysis{}, fmt.Errorf("gemini analyze: empty response")
	}

	parsed, err := parseAnalysis(resp.Choices[0].Content)
	if err != nil {
		a.logger.Warn("unparseable analysis response", "err", err)
		return ai.Analysis{}, err
	}
	return parsed, nil
}

// parseAnalysis extracts the JSON object from a model response, tolerating
// markdown fences and surrounding prose.
func parseAnalysis(text string) (ai.Analysis, error) {
	raw := extractJSON(text)
	if raw == "" {
		return ai.Analysis{}, fmt.Errorf("no JSON object in response")
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ai.Analysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	if resp.Type == "" {
		return ai.Analysis{}, fmt.Errorf("analysis missing type")
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	if len(resp.Labels) == 0 {
		resp.Labels = []string{"uncategorized"}
	}

	return ai.Analysis{
		Type:                 resp.Type,
		Metadata:             resp.Metadata,
		Labels:               resp.Labels,
		GeneratedTitle:       resp.GeneratedTitle,
		GeneratedDescription: resp.GeneratedDescription,
	}, nil
}

// extractJSON returns the outermost {...} span of text, stripping markdown
// code fences first.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
