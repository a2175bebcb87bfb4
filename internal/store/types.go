// Package store provides the knowledge store: SQLite-backed metadata and
// full-text search, plus HNSW-backed per-model vector indices. This is the
// persistence layer for everything the ingest and retrieval pipelines read
// and write.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceType identifies which chunker family produced a source's chunks.
type SourceType string

const (
	SourceTypeMarkdown   SourceType = "markdown"
	SourceTypePDF        SourceType = "pdf"
	SourceTypeEPUB       SourceType = "epub"
	SourceTypeText       SourceType = "text"
	SourceTypeJSON       SourceType = "json"
	SourceTypeVCSHistory SourceType = "vcs_history"
	SourceTypeWeb        SourceType = "web"
	SourceTypeAudio      SourceType = "audio"
)

// Source represents one ingested unit: a file, a URL, or a repository path.
// Identity is content-addressable: (Path, Digest) determines whether a
// re-ingest is a no-op, a revision, or a fresh insert.
type Source struct {
	ID         string // SHA256(path)
	Path       string // Canonical path or URL as given to the orchestrator
	Type       SourceType
	Digest     string // SHA256 of raw content, used for dedup/revision detection
	SizeBytes  int64
	ChunkCount int
	IngestedAt time.Time
	UpdatedAt  time.Time
}

// Chunk is a retrievable unit of content produced by a Chunker. ID is an
// autoincrement integer assigned by the store on insert; it is stable for
// the chunk's lifetime and is the key used by both the vector and full-text
// indices, so ties in retrieval break by ascending ID deterministically.
type Chunk struct {
	ID           int64 // assigned by the store; 0 until inserted
	SourceID     string
	SourcePath   string
	Ordinal      int               // position within the source, 0-indexed
	Text         string            // context-prefixed text as embedded
	RawText      string            // text before context-prefixing
	Metadata     map[string]string // chunker-specific metadata (heading path, page number, commit hash, ...)
	EmbeddingDim int               // 0 if not yet embedded
	Model        string            // embedding model name ("provider/model"), empty if not yet embedded
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SourceSummary is a short LLM-generated synopsis of a source, used by the
// context assembler to fill budget once per-chunk scores tie and by the
// generation driver's source list.
type SourceSummary struct {
	SourceID  string
	Summary   string
	Model     string
	CreatedAt time.Time
}

// VectorIndexMeta tracks one physical per-(model,dimension) HNSW index file.
type VectorIndexMeta struct {
	Slug       string // slug(model) e.g. "openai_text_embedding_3_small"
	Model      string
	Dimensions int
	ChunkCount int
	UpdatedAt  time.Time
}

// CurrentSchemaVersion is the current SQLite schema version. Bumping it
// triggers the migration runner on next Open.
const CurrentSchemaVersion = 1

// BM25Result is a single full-text search hit, returned by
// Repository.SearchBM25.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// DefaultStopWords are filtered out of indexed and query text. Unlike a
// code search index, a knowledge base over prose does not special-case
// language keywords.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "of", "to", "in", "on", "for",
	"is", "are", "was", "were", "be", "been", "it", "this", "that",
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures one per-model HNSW vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Quantization   string // "f32", "f16" (informational; coder/hnsw stores float32)
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible HNSW defaults for a given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search over one embedding model's vectors.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a query or insert vector doesn't match the
// dimensionality the index was built with.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (the embedding model or its version changed; reingest to rebuild the index)", e.Expected, e.Got)
}

// ConsistencyIssueType names a detected divergence between the metadata
// store, the full-text index, and a vector index.
type ConsistencyIssueType string

const (
	IssueOrphanFTS    ConsistencyIssueType = "orphan_fts"    // FTS entry with no chunk row
	IssueOrphanVector ConsistencyIssueType = "orphan_vector" // vector entry with no chunk row
	IssueMissingFTS   ConsistencyIssueType = "missing_fts"   // chunk row with no FTS entry
	IssueMissingVector ConsistencyIssueType = "missing_vector" // chunk row with no vector entry for its model
)

// ConsistencyIssue describes one detected divergence.
type ConsistencyIssue struct {
	Type    ConsistencyIssueType
	ChunkID string
	Details string
}

// ConsistencyReport is the result of Repository.ConsistencyCheck.
type ConsistencyReport struct {
	ChunksChecked int
	Issues        []ConsistencyIssue
	Duration      time.Duration
}

// Stats summarizes the knowledge store's current contents.
type Stats struct {
	SourceCount  int
	ChunkCount   int
	VectorIndices []VectorIndexMeta
	SchemaVersion int
}
