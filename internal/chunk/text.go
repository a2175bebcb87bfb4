package chunk

import (
	"context"
	"strings"
)

// TextChunker performs a fixed-window split with overlap, the fallback
// strategy every other family reduces to once it has flattened its source
// into plain prose.
type TextChunker struct {
	maxTokens int
	overlap   float64
	counter   TokenCounter
}

func NewTextChunker(cfg Config, counter TokenCounter) *TextChunker {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &TextChunker{maxTokens: cfg.TextMaxTokens, overlap: cfg.TextOverlap, counter: counter}
}

func (c *TextChunker) Chunk(ctx context.Context, input *Input) ([]Chunk, error) {
	text := string(input.Content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return windowChunks(text, c.maxTokens, c.overlap, c.counter, nil, 0), nil
}
