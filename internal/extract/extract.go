package extract

import (
	"context"
	"errors"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const MediaTypePDF = "application/pdf"

// PageSeparator marks the boundary between two pages in extracted text.
const PageSeparator = "\n\n"

var (
	// ErrInvalidType rejects uploads that are not PDFs before any processing.
	ErrInvalidType = errors.New("unsupported document type")
	// ErrExtraction reports a document that could not be read as text.
	ErrExtraction = errors.New("text extraction failed")
)

// Result is the plain text of a document plus the character offset at which
// each page starts.
type Result struct {
	Text       string
	PageStarts []int
}

// Extractor converts a binary document into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (Result, error)
}

// ValidateContentType accepts only PDFs. The declared content type decides;
// when the client sent none or a generic one, the bytes are sniffed.
func ValidateContentType(declared string, data []byte) error {
	mediaType := declared
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		mediaType = parsed
	}
	switch strings.ToLower(mediaType) {
	case MediaTypePDF:
		return nil
	case "", "application/octet-stream":
		if mimetype.Detect(data).Is(MediaTypePDF) {
			return nil
		}
	}
	return ErrInvalidType
}

// joinPages normalizes each page to single-spaced text, joins pages with
// PageSeparator and trims the result, keeping page offsets in step.
func joinPages(pages []string) Result {
	var b strings.Builder
	starts := make([]int, 0, len(pages))
	offset := 0
	for i, p := range pages {
		if i > 0 {
			b.WriteString(PageSeparator)
			offset += utf8.RuneCountInString(PageSeparator)
		}
		starts = append(starts, offset)
		text := strings.Join(strings.Fields(p), " ")
		b.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}

	raw := b.String()
	trimmedLeft := strings.TrimLeft(raw, " \t\r\n")
	lead := utf8.RuneCountInString(raw) - utf8.RuneCountInString(trimmedLeft)
	text := strings.TrimSpace(trimmedLeft)
	length := utf8.RuneCountInString(text)

	for i := range starts {
		starts[i] = min(max(starts[i]-lead, 0), length)
	}
	return Result{Text: text, PageStarts: starts}
}
