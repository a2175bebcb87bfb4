package gateway

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// OpenAIProvider dispatches Complete requests to the Chat Completions API and
// Embed requests to the Embeddings API.
type OpenAIProvider struct{}

func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) client() (openai.Client, error) {
	key, err := requireEnv("OPENAI_API_KEY")
	if err != nil {
		return openai.Client{}, err
	}
	return openai.NewClient(option.WithAPIKey(key)), nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, model string, req CompleteRequest) (*CompleteResponse, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}

	return &CompleteResponse{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, model string, req EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return &EmbedResponse{Vectors: [][]float32{}, Model: model}, nil
	}

	client, err := p.client()
	if err != nil {
		return nil, err
	}

	const maxBatchSize = 2048
	if len(req.Texts) > maxBatchSize {
		return nil, coreerrors.ValidationError(fmt.Sprintf("batch size %d exceeds OpenAI limit of %d", len(req.Texts), maxBatchSize), nil)
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Texts},
		Model: model,
	}

	resp, err := client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Data) != len(req.Texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(req.Texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}

	return &EmbedResponse{Vectors: vectors, Dimensions: dims, Model: model}, nil
}

func (p *OpenAIProvider) Transcribe(context.Context, string, TranscribeRequest) (*TranscribeResponse, error) {
	return nil, coreerrors.FatalProviderError("openai", fmt.Errorf("transcription is not supported by this provider"))
}

func (p *OpenAIProvider) CountTokens(_ string, text string) int {
	return countTokens(text)
}

func (p *OpenAIProvider) ContextWindow(model string) int {
	return contextWindowFor("openai/" + model)
}

func (p *OpenAIProvider) ValidateCredentials() error {
	_, err := requireEnv("OPENAI_API_KEY")
	return err
}
