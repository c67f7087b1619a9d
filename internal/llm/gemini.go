package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash-exp"

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls the Gemini generateContent API.
type GeminiClient struct {
	model  string
	models contentGenerator
}

// NewGeminiClient builds a Gemini API client. cfg may carry an HTTP client
// or base URL; its APIKey and Backend are always overwritten.
func NewGeminiClient(ctx context.Context, apiKey, model string, cfg *genai.ClientConfig) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if cfg == nil {
		cfg = &genai.ClientConfig{}
	}
	cfg.APIKey = apiKey
	cfg.Backend = genai.BackendGeminiAPI
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{model: model, models: client.Models}, nil
}

func (c *GeminiClient) Answer(ctx context.Context, question, contextText string) (string, error) {
	if c == nil || c.models == nil {
		return "", fmt.Errorf("nil gemini client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, defaultChatTimeout)
	defer cancel()
	contents := []*genai.Content{
		genai.NewContentFromText(BuildPrompt(question, contextText), genai.Role(genai.RoleUser)),
	}
	resp, err := c.models.GenerateContent(reqCtx, c.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(defaultChatTemperature)),
	})
	if err != nil {
		return "", upstreamError("gemini", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", upstreamError("gemini", fmt.Errorf("empty response"))
	}
	return text, nil
}

// responseText concatenates the non-thought text parts of all candidates.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
