package content

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ContentCharBudget caps how much of the raw content body is embedded, to
// stay under the embedding model's token limits.
const ContentCharBudget = 2000

// CombineForEmbedding assembles the canonical text blob for a field
// snapshot. It is pure and deterministic: the same fields always produce a
// byte-identical blob. Present fields are concatenated in a fixed priority
// order; absent fields are omitted entirely. The blob is both the text
// handed to the embedder and the literal payload stored beside the vector,
// so the two can never drift apart.
func CombineForEmbedding(f EmbedFields) string {
	var parts []string

	if f.Title != "" {
		parts = append(parts, "Title: "+f.Title)
	}
	if f.Summary != "" {
		parts = append(parts, "Summary: "+f.Summary)
	}
	if f.Description != "" {
		parts = append(parts, "Description: "+f.Description)
	}
	if len(f.Labels) > 0 {
		parts = append(parts, "Tags: "+strings.Join(f.Labels, ", "))
	}
	if len(f.MetaTags) > 0 {
		parts = append(parts, "MetaTags: "+formatMap(f.MetaTags))
	}
	if len(f.Metadata) > 0 {
		parts = append(parts, "Metadata: "+formatMap(f.Metadata))
	}
	if f.Content != "" {
		body := f.Content
		if len(body) > ContentCharBudget {
			cut := ContentCharBudget
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			body = body[:cut] + "..."
		}
		parts = append(parts, "Content: "+body)
	}

	return strings.Join(parts, "\n\n")
}

// formatMap renders a metadata map with sorted keys so the combined blob
// stays deterministic regardless of map iteration order.
func formatMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(pairs, ", ")
}
