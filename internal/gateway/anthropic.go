package gateway

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// AnthropicProvider dispatches Complete requests to the Anthropic Messages API.
// It does not implement Embed or Transcribe.
type AnthropicProvider struct {
	apiKey string
}

// NewAnthropicProvider constructs a provider that reads ANTHROPIC_API_KEY
// each time a call needs a client, so Gateway construction never fails for
// missing credentials the caller doesn't end up needing.
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) client() (anthropic.Client, error) {
	key, err := requireEnv("ANTHROPIC_API_KEY")
	if err != nil {
		return anthropic.Client{}, err
	}
	return anthropic.NewClient(option.WithAPIKey(key)), nil
}

func (p *AnthropicProvider) Complete(ctx context.Context, model string, req CompleteRequest) (*CompleteResponse, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &CompleteResponse{
		Text:         text,
		Model:        model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func (p *AnthropicProvider) Embed(context.Context, string, EmbedRequest) (*EmbedResponse, error) {
	return nil, coreerrors.FatalProviderError("anthropic", fmt.Errorf("embedding is not supported by this provider"))
}

func (p *AnthropicProvider) Transcribe(context.Context, string, TranscribeRequest) (*TranscribeResponse, error) {
	return nil, coreerrors.FatalProviderError("anthropic", fmt.Errorf("transcription is not supported by this provider"))
}

func (p *AnthropicProvider) CountTokens(_ string, text string) int {
	return countTokens(text)
}

func (p *AnthropicProvider) ContextWindow(model string) int {
	return contextWindowFor("anthropic/" + model)
}

func (p *AnthropicProvider) ValidateCredentials() error {
	_, err := requireEnv("ANTHROPIC_API_KEY")
	return err
}
