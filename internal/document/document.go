package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scroll-rag/internal/chunker"
	"scroll-rag/internal/extract"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

var ErrNoDocument = errors.New("no document uploaded")

// Document is an uploaded file with its extracted text and chunks.
type Document struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	RawText    string          `json:"rawText"`
	Chunks     []chunker.Chunk `json:"chunks"`
	UploadDate time.Time       `json:"uploadDate"`
	Status     Status          `json:"status"`
	Stats      chunker.Stats   `json:"stats"`
}

// Upload is a file as received from a client.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Processor turns uploads into chunked documents.
type Processor struct {
	log       *slog.Logger
	extractor extract.Extractor
	opts      chunker.Options
}

func NewProcessor(log *slog.Logger, extractor extract.Extractor, opts chunker.Options) *Processor {
	return &Processor{log: log, extractor: extractor, opts: opts}
}

// Process validates, extracts and chunks an upload. It returns
// extract.ErrInvalidType or extract.ErrExtraction without chunking anything.
func (p *Processor) Process(ctx context.Context, up Upload) (Document, error) {
	log := p.log.With("filename", up.Name)
	if err := extract.ValidateContentType(up.ContentType, up.Data); err != nil {
		return Document{}, err
	}

	res, err := p.extractor.Extract(ctx, up.Data)
	if err != nil {
		return Document{}, fmt.Errorf("extract %s: %w", up.Name, err)
	}
	log.Info("text extracted", "chars", len(res.Text), "pages", len(res.PageStarts))

	chunks := chunker.Split(res.Text, p.opts)
	chunker.AssignPages(chunks, res.PageStarts)
	stats := chunker.ComputeStats(res.Text, chunks)
	log.Info("text chunked", "chunks", stats.ChunkCount, "avg_chunk_size", stats.AvgChunkSize)

	return Document{
		ID:         uuid.New(),
		Name:       up.Name,
		RawText:    res.Text,
		Chunks:     chunks,
		UploadDate: time.Now().UTC(),
		Status:     StatusReady,
		Stats:      stats,
	}, nil
}

// Session holds the one document currently being worked on. A new upload
// replaces the previous document; each upload is identified by the generation
// Begin returns, and only the latest generation may store or fail.
type Session struct {
	mu     sync.RWMutex
	doc    *Document
	status Status
	gen    uint64
}

func NewSession() *Session {
	return &Session{}
}

// Begin discards the current document, marks an upload in progress and
// returns its generation.
func (s *Session) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.doc = nil
	s.status = StatusProcessing
	return s.gen
}

// Fail records that the upload gen did not produce a document. It reports
// false and changes nothing when a newer upload has begun since.
func (s *Session) Fail(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.doc = nil
	s.status = StatusError
	return true
}

// Set stores doc as the result of upload gen, unless a newer upload has begun.
func (s *Session) Set(gen uint64, doc Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.doc = &doc
	s.status = doc.Status
	return true
}

// Current returns the ready document, or ErrNoDocument.
func (s *Session) Current() (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return Document{}, ErrNoDocument
	}
	return *s.doc, nil
}

// Status reports the state of the latest upload; empty before the first one.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
