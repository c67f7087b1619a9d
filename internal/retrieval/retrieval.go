// Package retrieval picks which chunks of a document go into a prompt.
package retrieval

import (
	"strings"

	"scroll-rag/internal/chunker"
)

const (
	DefaultContextChunks = 5
	ContextDivider       = "\n---\n"
)

// Selector chooses the chunks used as context for a query.
type Selector interface {
	SelectContext(chunks []chunker.Chunk, query string) []chunker.Chunk
}

// FirstN ignores the query and returns the leading N chunks.
// TODO: replace with similarity ranking once chunks carry embeddings.
type FirstN struct {
	N int
}

func (f FirstN) SelectContext(chunks []chunker.Chunk, _ string) []chunker.Chunk {
	n := f.N
	if n <= 0 {
		n = DefaultContextChunks
	}
	if len(chunks) < n {
		n = len(chunks)
	}
	return chunks[:n:n]
}

// BuildContext joins chunk contents with a visible divider.
func BuildContext(chunks []chunker.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, ContextDivider)
}
