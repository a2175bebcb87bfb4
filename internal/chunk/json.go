package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// JSONChunker emits one chunk per top-level array element, or a single
// chunk for a top-level object. Each element larger than the token ceiling
// is window-split, same as every other family.
type JSONChunker struct {
	maxTokens int
	overlap   float64
	counter   TokenCounter
}

func NewJSONChunker(cfg Config, counter TokenCounter) *JSONChunker {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &JSONChunker{maxTokens: cfg.JSONMaxTokens, overlap: cfg.JSONOverlap, counter: counter}
}

func (c *JSONChunker) Chunk(ctx context.Context, input *Input) ([]Chunk, error) {
	var root any
	if err := json.Unmarshal(input.Content, &root); err != nil {
		return nil, coreerrors.UnsupportedSourceTypeError(input.SourcePath).WithDetail("reason", fmt.Sprintf("invalid JSON: %v", err))
	}

	var elements []any
	switch v := root.(type) {
	case []any:
		elements = v
	default:
		elements = []any{v}
	}

	var chunks []Chunk
	ordinal := 0
	for i, elem := range elements {
		encoded, err := json.MarshalIndent(elem, "", "  ")
		if err != nil {
			continue
		}
		text := string(encoded)
		if text == "" {
			continue
		}
		meta := map[string]string{"element_index": strconv.Itoa(i)}
		if c.counter(text) <= c.maxTokens {
			chunks = append(chunks, Chunk{Ordinal: ordinal, Text: text, Metadata: meta})
			ordinal++
			continue
		}
		sub := windowChunks(text, c.maxTokens, c.overlap, c.counter, meta, ordinal)
		chunks = append(chunks, sub...)
		ordinal += len(sub)
	}

	return chunks, nil
}
