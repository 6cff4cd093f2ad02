package rag

import (
	"fmt"
	"strings"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// FormatContext renders search results into the human-readable block the
// LLM node prompt template expects: an opening
// sentence, then "--- <source>:<line_start>-<line_end> (score: <0.00>) ---"
// headers above each chunk's text, in descending score order (the order
// Search returns). An empty result set collapses to a single sentence
// rather than an empty block.
func FormatContext(results []models.SearchResult) string {
	if len(results) == 0 {
		return "No relevant context was found in your knowledge base."
	}

	var b strings.Builder
	b.WriteString("Relevant context from your knowledge base:")
	for _, r := range results {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "--- %s:%d-%d (score: %.2f) ---\n%s", r.Chunk.Source, r.Chunk.LineStart, r.Chunk.LineEnd, r.Score, r.Chunk.Text)
	}
	return b.String()
}
