// Package chunk splits raw source material into the ordered, bounded-size
// text units the store persists and the retriever searches over.
package chunk

import (
	"context"
)

// Default token ceilings and overlaps per family, spec-mandated and
// overridable per project via Config.
const (
	DefaultMarkdownTokens  = 512
	DefaultMarkdownOverlap = 0.10

	DefaultPDFTokens  = 400
	DefaultPDFOverlap = 0.20

	DefaultEPUBTokens  = 800
	DefaultEPUBOverlap = 0.10

	DefaultTextTokens  = 512
	DefaultTextOverlap = 0.10

	DefaultJSONTokens  = 300
	DefaultJSONOverlap = 0.0

	DefaultVCSTokens  = 600
	DefaultVCSOverlap = 0.0

	DefaultWebTokens  = 512
	DefaultWebOverlap = 0.10

	DefaultAudioTokens  = 512
	DefaultAudioOverlap = 0.10
)

// TokenCounter approximates the token length of a string, per the Gateway's
// tokenizer. Chunkers take one by constructor injection rather than
// importing the gateway package directly, keeping the dependency one-way.
type TokenCounter func(text string) int

// fallbackTokenCounter is used when a chunker is constructed without an
// explicit counter (tests, or callers that don't care about exactness).
func fallbackTokenCounter(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// Input is one raw source handed to a Chunker.
type Input struct {
	SourcePath   string            // canonical path or URL
	Content      []byte            // raw bytes, already fetched/read/decoded
	MetadataHint map[string]string // e.g. {"url": "..."} for the web chunker
}

// Chunk is one ordinal slice of an Input's content, not yet persisted. The
// store assigns the durable integer ID on insert.
type Chunk struct {
	Ordinal  int               // 0-indexed, contiguous within a source
	Text     string            // the chunk's content
	Metadata map[string]string // heading_path, page_start/page_end, chapter, commit_hash, url, ...
}

// Chunker turns one Input into an ordered sequence of Chunks. Every
// implementation must be deterministic for identical input, emit no
// empty-text chunks, number ordinals contiguously from 0, and respect its
// configured token ceiling and overlap (approximate, via TokenCounter).
type Chunker interface {
	Chunk(ctx context.Context, input *Input) ([]Chunk, error)
}

// Config tunes every family's size/overlap defaults, overridable per project.
type Config struct {
	MarkdownMaxTokens int
	MarkdownOverlap   float64
	PDFMaxTokens      int
	PDFOverlap        float64
	EPUBMaxTokens     int
	EPUBOverlap       float64
	TextMaxTokens     int
	TextOverlap       float64
	JSONMaxTokens     int
	JSONOverlap       float64
	VCSMaxTokens      int
	VCSOverlap        float64
	WebMaxTokens      int
	WebOverlap        float64
	AudioMaxTokens    int
	AudioOverlap      float64

	// VCSToken authenticates clones of private remote repositories. The
	// caller building the Config fills it from RAGSMITH_VCS_TOKEN (the CLI
	// does so in chunkConfigFrom); never logged.
	VCSToken string
}

// DefaultConfig returns spec-mandated defaults for every family.
func DefaultConfig() Config {
	return Config{
		MarkdownMaxTokens: DefaultMarkdownTokens,
		MarkdownOverlap:   DefaultMarkdownOverlap,
		PDFMaxTokens:      DefaultPDFTokens,
		PDFOverlap:        DefaultPDFOverlap,
		EPUBMaxTokens:     DefaultEPUBTokens,
		EPUBOverlap:       DefaultEPUBOverlap,
		TextMaxTokens:     DefaultTextTokens,
		TextOverlap:       DefaultTextOverlap,
		JSONMaxTokens:     DefaultJSONTokens,
		JSONOverlap:       DefaultJSONOverlap,
		VCSMaxTokens:      DefaultVCSTokens,
		VCSOverlap:        DefaultVCSOverlap,
		WebMaxTokens:      DefaultWebTokens,
		WebOverlap:        DefaultWebOverlap,
		AudioMaxTokens:    DefaultAudioTokens,
		AudioOverlap:      DefaultAudioOverlap,
	}
}
