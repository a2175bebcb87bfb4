package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

const (
	defaultOllamaHost    = "http://localhost:11434"
	ollamaPoolSize       = 4
	ollamaIdleConnExpiry = 10 * time.Second
)

// OllamaProvider talks to a local Ollama daemon over its HTTP API. It needs
// no credential: ValidateCredentials only checks that the daemon answers.
type OllamaProvider struct {
	host   string
	client *http.Client
}

func NewOllamaProvider(host string) *OllamaProvider {
	if host == "" {
		host = defaultOllamaHost
	}
	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		MaxConnsPerHost:     ollamaPoolSize * 2,
		IdleConnTimeout:     ollamaIdleConnExpiry,
	}
	return &OllamaProvider{
		host:   host,
		client: &http.Client{Transport: transport},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, model string, req CompleteRequest) (*CompleteResponse, error) {
	var system, prompt string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system += m.Content + "\n"
			continue
		}
		prompt += m.Content + "\n"
	}

	body, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: prompt, System: system, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: generate failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return &CompleteResponse{
		Text:         out.Response,
		Model:        model,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (p *OllamaProvider) Embed(ctx context.Context, model string, req EmbedRequest) (*EmbedResponse, error) {
	if len(req.Texts) == 0 {
		return &EmbedResponse{Vectors: [][]float32{}, Model: model}, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: model, Input: req.Texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: embed failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(out.Embeddings) != len(req.Texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(req.Texts), len(out.Embeddings))
	}

	vectors := make([][]float32, len(out.Embeddings))
	for i, e := range out.Embeddings {
		vec := make([]float32, len(e))
		for j, v := range e {
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

func (p *OllamaProvider) Transcribe(context.Context, string, TranscribeRequest) (*TranscribeResponse, error) {
	return nil, coreerrors.FatalProviderError("ollama", fmt.Errorf("transcription is not supported by this provider"))
}

func (p *OllamaProvider) CountTokens(_ string, text string) int {
	return countTokens(text)
}

func (p *OllamaProvider) ContextWindow(model string) int {
	return contextWindowFor("ollama/" + model)
}

// ValidateCredentials checks that the daemon is reachable rather than any
// environment variable, since Ollama runs unauthenticated on localhost.
func (p *OllamaProvider) ValidateCredentials() error {
	req, err := http.NewRequest(http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return coreerrors.FatalProviderError("ollama", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := p.client.Do(req.WithContext(ctx))
	if err != nil {
		return coreerrors.TransientProviderError("ollama", fmt.Errorf("daemon unreachable at %s: %w", p.host, err))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return coreerrors.TransientProviderError("ollama", fmt.Errorf("daemon returned status %d", resp.StatusCode))
	}
	return nil
}
