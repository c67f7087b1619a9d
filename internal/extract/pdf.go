package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads page text with ledongthuc/pdf.
type PDFExtractor struct {
	log *slog.Logger
}

func NewPDFExtractor(log *slog.Logger) *PDFExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &PDFExtractor{log: log}
}

// Extract returns the document text with pages separated by PageSeparator.
// Unreadable documents, and documents without any text, yield ErrExtraction.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (res Result, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("pdf parser panicked", "panic", rec)
			res, err = Result{}, fmt.Errorf("%w: malformed pdf", ErrExtraction)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.log.Warn("skipping unreadable page", "page", pageNum, "err", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	res = joinPages(pages)
	if res.Text == "" {
		return Result{}, fmt.Errorf("%w: no text found in %d pages", ErrExtraction, numPages)
	}
	e.log.Debug("pdf text extracted", "pages", numPages, "chars", len(res.Text))
	return res, nil
}
