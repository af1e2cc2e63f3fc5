// Package llm wraps an OpenAI-compatible embedding and chat-completion API.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for embedding and chat-completion calls against
// an OpenAI-compatible backend.
type Provider interface {
	// Chat sends a non-streaming chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends a streaming chat completion request and returns a
	// channel of token deltas and a channel that carries at most one error.
	// Both channels are closed when the upstream response is fully consumed
	// or ctx is cancelled.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan string, <-chan error)

	// Embed generates embeddings for a batch of texts, preserving order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a non-streaming chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an OpenAI-compatible provider. A deployment pointed at
// separate embedding and chat backends constructs two Providers, one per
// Config.
type Config struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewProvider creates an OpenAI-compatible provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key not configured")
	}
	return &openAICompatProvider{base: newOpenAICompatClient(cfg)}, nil
}
