package llm

import "errors"

// Sentinel errors returned (wrapped) by Provider implementations. Callers
// use errors.Is to classify upstream failures without parsing messages.
var (
	// ErrEmbedding wraps a failure from the embedding endpoint: a
	// non-retryable status, an undecodable response, or a retryable
	// failure that persisted through every retry.
	ErrEmbedding = errors.New("llm: embedding request failed")

	// ErrChat wraps a failure from the chat-completions endpoint.
	// Non-streaming requests are retried on retryable statuses first;
	// streaming requests are not retried.
	ErrChat = errors.New("llm: chat request failed")
)
