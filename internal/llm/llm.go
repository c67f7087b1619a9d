package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredentials is returned when a client is built without an API key.
	ErrMissingCredentials = errors.New("API key is missing")
	// ErrUpstream wraps every failure reported by the hosted model.
	ErrUpstream = errors.New("chat service failed")
)

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	Answer(ctx context.Context, question, contextText string) (string, error)
}

const systemInstruction = "You are Julius, an academic research assistant. " +
	"Use the following context from a research paper to answer the user's question.\n" +
	"If the answer is not in the context, say you don't know based on the document."

// BuildPrompt places the question under the document context. Without
// context the question is sent as is.
func BuildPrompt(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return question
	}
	return fmt.Sprintf("%s\n\nCONTEXT:\n%s\n\nUSER QUESTION:\n%s", systemInstruction, contextText, question)
}

func upstreamError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, provider, err)
}
