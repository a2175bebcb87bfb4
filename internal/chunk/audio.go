package chunk

import (
	"context"
	"fmt"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

const maxAudioBytes = 64 * 1024 * 1024

// Transcriber is the audio-to-text seam AudioChunker depends on. It is a
// narrow interface rather than an import of the gateway package so this
// package's dependency graph stays one-way; gateway.Gateway does not
// implement it as is (its Transcribe takes a TranscribeRequest), so a
// caller supplies an adapter.
type Transcriber interface {
	Transcribe(ctx context.Context, model string, audio []byte) (string, error)
}

// AudioChunker transcribes audio via the Gateway, then runs the plain-text
// windowing strategy over the transcript. A file size ceiling is enforced
// before any transcription call is made.
type AudioChunker struct {
	maxTokens int
	overlap   float64
	counter   TokenCounter
	transcriber Transcriber
	model       string
}

func NewAudioChunker(cfg Config, counter TokenCounter, transcriber Transcriber, model string) *AudioChunker {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &AudioChunker{
		maxTokens:   cfg.AudioMaxTokens,
		overlap:     cfg.AudioOverlap,
		counter:     counter,
		transcriber: transcriber,
		model:       model,
	}
}

func (c *AudioChunker) Chunk(ctx context.Context, input *Input) ([]Chunk, error) {
	if len(input.Content) > maxAudioBytes {
		return nil, coreerrors.ValidationError(fmt.Sprintf("audio source %s exceeds %d byte ceiling", input.SourcePath, maxAudioBytes), nil)
	}
	if c.transcriber == nil {
		return nil, coreerrors.InternalError("audio chunker has no transcriber configured", nil)
	}

	text, err := c.transcriber.Transcribe(ctx, c.model, input.Content)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	return windowChunks(text, c.maxTokens, c.overlap, c.counter, map[string]string{"transcription_model": c.model}, 0), nil
}
