// Package gateway provides a provider-agnostic LLM Gateway: a single facade
// over completion, embedding, transcription and token-accounting providers,
// dispatched by a "provider/model" identifier.
package gateway

import (
	"context"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// Message is one turn in a completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// CompleteRequest is a generation request routed to a completion provider.
type CompleteRequest struct {
	Model       string // "provider/model", e.g. "anthropic/claude-sonnet-4-5"
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// CompleteResponse is a generation result.
type CompleteResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// EmbedRequest batches texts for embedding under a single model.
type EmbedRequest struct {
	Model string // "provider/model", e.g. "openai/text-embedding-3-small"
	Texts []string
}

// EmbedResponse holds one vector per input text, in order.
type EmbedResponse struct {
	Vectors    [][]float32
	Dimensions int
	Model      string
}

// TranscribeRequest carries raw audio bytes to a transcription provider.
type TranscribeRequest struct {
	Model    string
	Audio    []byte
	MIMEType string
}

// TranscribeResponse is the recognized text.
type TranscribeResponse struct {
	Text string
}

// Gateway dispatches requests to the provider named by a request's Model
// field, retrying transient failures and caching token counts. Context-window
// lookups are not cached.
type Gateway struct {
	providers map[string]Provider
	cache     *responseCache
	retry     coreerrors.RetryConfig
}

// Provider is one backend a Gateway can dispatch to. Not every provider
// implements every capability; providers that don't support a capability
// return a FatalProviderFailure-wrapped error.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model string, req CompleteRequest) (*CompleteResponse, error)
	Embed(ctx context.Context, model string, req EmbedRequest) (*EmbedResponse, error)
	Transcribe(ctx context.Context, model string, req TranscribeRequest) (*TranscribeResponse, error)
	CountTokens(model, text string) int
	ContextWindow(model string) int
	ValidateCredentials() error
}

// defaultGatewayRetry allows at most 3 attempts (1 initial + 2 retries) with
// exponential backoff capped at 16s between attempts, well inside the 60s
// total retry budget.
func defaultGatewayRetry() coreerrors.RetryConfig {
	cfg := coreerrors.DefaultRetryConfig()
	cfg.MaxRetries = 2
	return cfg
}
