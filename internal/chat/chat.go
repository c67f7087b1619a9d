// Package chat answers questions about the current document.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"scroll-rag/internal/cache"
	"scroll-rag/internal/chunker"
	"scroll-rag/internal/document"
	"scroll-rag/internal/llm"
	"scroll-rag/internal/retrieval"
)

var ErrEmptyQuestion = errors.New("question is empty")

// Answer is the model reply together with the chunks it was given.
type Answer struct {
	Text          string          `json:"answer"`
	ContextChunks []chunker.Chunk `json:"context_chunks"`
	Cached        bool            `json:"cached"`
}

type Service struct {
	log      *slog.Logger
	llm      llm.Client
	selector retrieval.Selector
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewService(log *slog.Logger, client llm.Client, selector retrieval.Selector, c cache.Cache, cacheTTL time.Duration) *Service {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Service{log: log, llm: client, selector: selector, cache: c, cacheTTL: cacheTTL}
}

// Ask sends the question with context drawn from doc. Model failures are
// returned wrapped in llm.ErrUpstream; cache failures are only logged.
func (s *Service) Ask(ctx context.Context, doc document.Document, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	selected := s.selector.SelectContext(doc.Chunks, question)
	contextText := retrieval.BuildContext(selected)
	log := s.log.With("document_id", doc.ID, "context_chunks", len(selected))

	key := cache.Key(question, contextText)
	if cached, err := s.cache.GetAnswer(ctx, key); err != nil {
		log.Warn("cache lookup failed", "err", err)
	} else if cached != nil {
		log.Info("cache hit")
		return Answer{Text: cached.Text, ContextChunks: selected, Cached: true}, nil
	}

	text, err := s.llm.Answer(ctx, question, contextText)
	if err != nil {
		return Answer{}, err
	}

	if err := s.cache.SetAnswer(ctx, key, &cache.Answer{Text: text, CreatedAt: time.Now().UTC()}, s.cacheTTL); err != nil {
		log.Warn("failed to cache answer", "err", err)
	}
	return Answer{Text: text, ContextChunks: selected}, nil
}
