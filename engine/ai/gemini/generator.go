package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Generator produces answers grounded in retrieved content.
type Generator struct {
	client llms.Model
	logger *slog.Logger
}

func newGenerator(client llms.Model, logger *slog.Logger) *Generator {
	return &Generator{client: client, logger: logger}
}

// GenerateAnswer answers the question using only the supplied context
// documents. The prompt instructs the model to say so when the context is
// insufficient rather than invent an answer.
func (g *Generator) GenerateAnswer(ctx context.Context, query string, contextBlocks []string) (string, error) {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions about the user's saved content.\n")
	b.WriteString("Answer the question using ONLY the context documents below. ")
	b.WriteString("If the context does not contain enough information to answer, say so plainly instead of guessing.\n\n")
	b.WriteString("Context documents:\n\n")
	for _, block := range contextBlocks {
		b.WriteString(block)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", query)

	resp, err := g.client.GenerateContent(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(b.String())}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("gemini generate: empty response")
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", fmt.Errorf("gemini generate: blank answer")
	}
	return answer, nil
}
