package config

import (
	"log/slog"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Chunking, in characters
	ChunkSize     int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap  int `env:"CHUNK_OVERLAP" envDefault:"200"`
	ContextChunks int `env:"CONTEXT_CHUNKS" envDefault:"5"`

	// LLM
	LLMProvider  string `env:"LLM_PROVIDER" envDefault:"gemini"` // "gemini" or "openai"
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	APIKey       string `env:"API_KEY"` // fallback key for the gemini provider
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	LLMModel     string `env:"LLM_MODEL"`

	// Answer cache; disabled when RedisAddr is empty
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// GeminiKey prefers GEMINI_API_KEY over the generic API_KEY.
func (c Config) GeminiKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return c.APIKey
}
