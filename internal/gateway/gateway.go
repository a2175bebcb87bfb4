package gateway

import (
	"context"
	"fmt"
	"strings"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// New constructs a Gateway wired with the standard provider set: anthropic,
// openai, ollama and whisper. Each provider only activates once its
// credential (if any) is present; ValidateCredentials surfaces what's missing.
func New() *Gateway {
	g := &Gateway{
		providers: make(map[string]Provider),
		cache:     newResponseCache(512),
		retry:     defaultGatewayRetry(),
	}
	g.Register(NewAnthropicProvider())
	g.Register(NewOpenAIProvider())
	g.Register(NewOllamaProvider(""))
	g.Register(NewWhisperProvider())
	return g
}

// Register adds or replaces a provider by name.
func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
}

// splitModel splits a "provider/model" identifier. Anthropic/OpenAI model
// names may themselves contain slashes (e.g. date-suffixed snapshots), so
// only the first segment is treated as the provider key.
func splitModel(id string) (provider, model string, err error) {
	idx := strings.Index(id, "/")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", coreerrors.ValidationError(
			fmt.Sprintf("model identifier %q must be of the form provider/model", id), nil)
	}
	return id[:idx], id[idx+1:], nil
}

func (g *Gateway) provider(id string) (Provider, string, error) {
	providerName, model, err := splitModel(id)
	if err != nil {
		return nil, "", err
	}
	p, ok := g.providers[providerName]
	if !ok {
		return nil, "", coreerrors.ValidationError(fmt.Sprintf("unknown provider %q", providerName), nil)
	}
	return p, model, nil
}

// Complete routes a completion request to its provider, retrying transient failures.
func (g *Gateway) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	p, model, err := g.provider(req.Model)
	if err != nil {
		return nil, err
	}
	return coreerrors.RetryWithResult(ctx, g.retry, func() (*CompleteResponse, error) {
		resp, err := p.Complete(ctx, model, req)
		return resp, classifyProviderError(p.Name(), err)
	})
}

// Embed routes an embedding request to its provider, retrying transient failures.
func (g *Gateway) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	p, model, err := g.provider(req.Model)
	if err != nil {
		return nil, err
	}
	return coreerrors.RetryWithResult(ctx, g.retry, func() (*EmbedResponse, error) {
		resp, err := p.Embed(ctx, model, req)
		return resp, classifyProviderError(p.Name(), err)
	})
}

// Transcribe routes an audio transcription request to its provider.
func (g *Gateway) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResponse, error) {
	p, model, err := g.provider(req.Model)
	if err != nil {
		return nil, err
	}
	return coreerrors.RetryWithResult(ctx, g.retry, func() (*TranscribeResponse, error) {
		resp, err := p.Transcribe(ctx, model, req)
		return resp, classifyProviderError(p.Name(), err)
	})
}

// CountTokens returns the token count of text under the given model,
// consulting the cache before asking the provider.
func (g *Gateway) CountTokens(modelID, text string) (int, error) {
	p, model, err := g.provider(modelID)
	if err != nil {
		return 0, err
	}
	if n, ok := g.cache.getTokenCount(modelID, text); ok {
		return n, nil
	}
	n := p.CountTokens(model, text)
	g.cache.putTokenCount(modelID, text, n)
	return n, nil
}

// ContextWindow returns the provider's declared context window for a model.
func (g *Gateway) ContextWindow(modelID string) (int, error) {
	p, model, err := g.provider(modelID)
	if err != nil {
		return 0, err
	}
	return p.ContextWindow(model), nil
}

// ValidateCredentials checks that modelID's provider has its required
// credential (if any) present, returning a CredentialError naming the
// missing environment variable when it does not.
func (g *Gateway) ValidateCredentials(modelID string) error {
	p, _, err := g.provider(modelID)
	if err != nil {
		return err
	}
	return p.ValidateCredentials()
}

// classifyProviderError wraps a raw provider error into the taxonomy's
// transient/fatal split so the retry loop and caller know whether to retry.
func classifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*coreerrors.CoreError); ok {
		return ce
	}
	msg := err.Error()
	transient := strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "429")
	if transient {
		return coreerrors.TransientProviderError(provider, err)
	}
	return coreerrors.FatalProviderError(provider, err)
}
