// Package ingest drives the nine-step pipeline that turns a raw source
// (a file, a URL, a repository) into chunks, vectors, full-text entries and
// a summary recorded in the store.
package ingest

import (
	"github.com/ragsmith/ragsmith/internal/store"
)

// Options configures one Ingest call. Fields left zero fall back to the
// Orchestrator's configured defaults.
type Options struct {
	EmbeddingModel   string
	ContextModel     string // cheap completion model for per-chunk context prefixes
	SummaryModel     string
	SummaryMaxTokens int

	// AutoConfirmCost skips the cost-preview confirmation gate. When false
	// and the preview warns, Ingest returns the preview without any LLM
	// work. File-based sources are not chunked either; self-fetching
	// sources (web, vcs_history) are chunked first, since their digest and
	// chunk count come from the chunked output.
	AutoConfirmCost bool

	// ProjectRoot confines local filesystem paths; empty disables
	// confinement (remote sources are validated by scheme, not by root).
	ProjectRoot string

	// MetadataHint is passed through to chunk.DetectFamily and to the
	// selected Chunker's Input.
	MetadataHint map[string]string
}

// CostPreview is step 4's estimate, returned before any LLM calls happen
// (and, for file-based sources, before chunking) when a preview is
// required and not yet confirmed.
type CostPreview struct {
	EstimatedChunks   int
	EstimatedLLMCalls int // context-prefix calls + one summary call
	ContextModel      string
	Warning           string // non-empty when ContextModel is not cheap-tier
}

// Result is what a completed Ingest (or Reingest) call returns.
type Result struct {
	Source         *store.Source
	ChunkCount     int
	AlreadyPresent bool // true when the (path, digest) pair was already stored; no work was done
	Preview        *CostPreview
}
