package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v3"

	"scroll-rag/internal/cache"
	"scroll-rag/internal/chat"
	"scroll-rag/internal/chunker"
	"scroll-rag/internal/config"
	"scroll-rag/internal/document"
	"scroll-rag/internal/extract"
	"scroll-rag/internal/llm"
	"scroll-rag/internal/logger"
	"scroll-rag/internal/retrieval"
)

// Deps bundles the runtime dependencies of the server.
type Deps struct {
	Config    config.Config
	Log       *slog.Logger
	Processor *document.Processor
	Session   *document.Session
	Chat      *chat.Service
	Cache     cache.Cache
}

// Build loads env, config, and shared components. A missing chat credential
// does not stop the server: uploads keep working and chat requests fail.
func Build(ctx context.Context) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	llmClient, err := buildLLM(ctx, cfg, log)
	if err != nil {
		if !errors.Is(err, llm.ErrMissingCredentials) {
			return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		log.Warn("chat disabled until an API key is configured", "provider", cfg.LLMProvider)
		llmClient = unavailableClient{err: err}
	}
	c := buildCache(cfg, log)

	return Assemble(cfg, log, extract.NewPDFExtractor(log), llmClient, c), nil
}

// Assemble wires already constructed collaborators together.
func Assemble(cfg config.Config, log *slog.Logger, ex extract.Extractor, client llm.Client, c cache.Cache) Deps {
	processor := document.NewProcessor(log, ex, chunker.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	selector := retrieval.FirstN{N: cfg.ContextChunks}
	return Deps{
		Config:    cfg,
		Log:       log,
		Processor: processor,
		Session:   document.NewSession(),
		Chat:      chat.NewService(log, client, selector, c, time.Duration(cfg.CacheTTL)*time.Second),
		Cache:     c,
	}
}

func buildLLM(ctx context.Context, cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiKey(), cfg.LLMModel, nil)
		if err != nil {
			return nil, err
		}
		log.Info("using Gemini LLM client", "model", cfg.LLMModel)
		return client, nil
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel))
		if err != nil {
			return nil, err
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: gemini, openai)", cfg.LLMProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable, answer cache disabled", "addr", cfg.RedisAddr, "err", err)
		return cache.NewNoOpCache()
	}
	log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
	return c
}

// unavailableClient fails every chat with the error that prevented the real
// client from being built.
type unavailableClient struct {
	err error
}

func (u unavailableClient) Answer(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: %w", llm.ErrUpstream, u.err)
}
