package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores chat answers so a repeated question over the same context
// does not hit the model again.
type Cache interface {
	// GetAnswer returns nil on a miss.
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	// SetAnswer stores an answer with TTL.
	SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error

	Close() error
}

// Answer is a cached model response.
type Answer struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Key derives a cache key from the question and the exact context sent with it.
func Key(question, contextText string) string {
	h := sha256.New()
	h.Write([]byte(question))
	h.Write([]byte{0})
	h.Write([]byte(contextText))
	return hex.EncodeToString(h.Sum(nil))
}
