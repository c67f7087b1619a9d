package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultSource       = "user-upload"
)

// separators are tried in order; the first one present in a window decides the split.
// The empty separator always matches and produces a hard cut at the window end.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Options controls how text is chunked. Sizes are in characters.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Source       string
}

// Metadata describes where a chunk came from.
type Metadata struct {
	Source string `json:"source"`
	Page   *int   `json:"page,omitempty"`
}

// Chunk is a trimmed slice of the source text with its raw offsets.
type Chunk struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	StartIndex int      `json:"startIndex"`
	EndIndex   int      `json:"endIndex"`
	Metadata   Metadata `json:"metadata"`
}

// Split walks the text with a cursor and cuts it into overlapping chunks,
// preferring paragraph, line, sentence and word boundaries in that order.
// It never fails: empty or whitespace-only text yields no chunks.
func Split(text string, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.Source == "" {
		opts.Source = DefaultSource
	}

	runes := []rune(text)
	textLength := len(runes)
	run := uuid.NewString()
	var chunks []Chunk

	emit := func(content string, start, end int) {
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("chunk-%s-%d", run, len(chunks)),
			Content:    content,
			StartIndex: start,
			EndIndex:   end,
			Metadata:   Metadata{Source: opts.Source},
		})
	}

	start := 0
	for start < textLength {
		end := min(start+opts.ChunkSize, textLength)
		if end >= textLength {
			emit(strings.TrimSpace(string(runes[start:])), start, textLength)
			break
		}

		window := string(runes[start:end])
		splitPoint := findSplitPoint(window)
		content := strings.TrimSpace(string(runes[start : start+splitPoint]))
		emit(content, start, start+splitPoint)

		next := start + splitPoint - opts.ChunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findSplitPoint returns the offset, in characters, just past the last
// occurrence of the highest-priority separator found in window.
func findSplitPoint(window string) int {
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx == -1 {
			continue
		}
		return utf8.RuneCountInString(window[:idx]) + utf8.RuneCountInString(sep)
	}
	return utf8.RuneCountInString(window)
}

// Stats summarizes a chunking run.
type Stats struct {
	CharCount    int `json:"charCount"`
	ChunkCount   int `json:"chunkCount"`
	AvgChunkSize int `json:"avgChunkSize"`
}

// ComputeStats reports the character count of text, the number of chunks and
// the average number of source characters per chunk, rounded.
func ComputeStats(text string, chunks []Chunk) Stats {
	s := Stats{
		CharCount:  utf8.RuneCountInString(text),
		ChunkCount: len(chunks),
	}
	if s.ChunkCount > 0 {
		s.AvgChunkSize = (2*s.CharCount + s.ChunkCount) / (2 * s.ChunkCount)
	}
	return s
}

// AssignPages tags each chunk with the 1-based page containing its StartIndex.
// pageStarts holds the character offset at which each page begins, ascending.
func AssignPages(chunks []Chunk, pageStarts []int) {
	if len(pageStarts) == 0 {
		return
	}
	page := 0
	for i := range chunks {
		for page+1 < len(pageStarts) && pageStarts[page+1] <= chunks[i].StartIndex {
			page++
		}
		n := page + 1
		chunks[i].Metadata.Page = &n
	}
}
