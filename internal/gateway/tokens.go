package gateway

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

var sharedEncoding = func() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil
	}
	return enc
}()

// countTokens counts text tokens with tiktoken-go's cl100k_base encoding,
// the same tokenizer family the completion providers' models use closely
// enough for budget accounting. If the encoding can't be loaded (no network
// access to fetch its BPE ranks on first use), it falls back to a
// length-based estimate.
func countTokens(text string) int {
	if sharedEncoding == nil {
		return fallbackTokenCount(text)
	}
	return len(sharedEncoding.Encode(text, nil, nil))
}

// fallbackTokenCount estimates token count as ceil(len(text)/4), a common
// rough approximation for English prose.
func fallbackTokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// contextWindows is the static table of known context window sizes by
// "provider/model" identifier. Unknown models fall back to a conservative default.
var contextWindows = map[string]int{
	"anthropic/claude-sonnet-4-5": 200_000,
	"anthropic/claude-opus-4-1":   200_000,
	"anthropic/claude-haiku-4-5":  200_000,
	"openai/gpt-4o":               128_000,
	"openai/gpt-4o-mini":          128_000,
	"openai/text-embedding-3-small": 8_191,
	"openai/text-embedding-3-large": 8_191,
	"ollama/qwen3:0.6b":           32_000,
	"ollama/qwen3-embedding:0.6b": 32_000,
}

const defaultContextWindow = 8_192

func contextWindowFor(providerPrefixedModel string) int {
	if w, ok := contextWindows[providerPrefixedModel]; ok {
		return w
	}
	return defaultContextWindow
}

// cheapTierModels names models cheap enough to call once per chunk without
// a cost warning: small local models and the smallest hosted models.
var cheapTierModels = map[string]struct{}{
	"ollama/qwen3:0.6b":             {},
	"ollama/qwen3-embedding:0.6b":   {},
	"anthropic/claude-haiku-4-5":    {},
	"openai/gpt-4o-mini":            {},
	"openai/text-embedding-3-small": {},
}

// IsCheapTier reports whether model is cheap enough to invoke once per
// chunk (context-prefix generation) without triggering a cost-preview
// warning. Unknown models are treated as not cheap, so a cost preview
// always warns rather than silently assuming a new model is affordable.
func IsCheapTier(model string) bool {
	_, ok := cheapTierModels[model]
	return ok
}
