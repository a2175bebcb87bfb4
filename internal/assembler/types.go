// Package assembler builds the four-section prompt handed to the
// generation driver: project brief, feature spec, source summaries and
// the trust-bounded block of retrieved chunks.
package assembler

import (
	"github.com/ragsmith/ragsmith/internal/store"
)

// Candidate is one retrieved chunk plus the fusion score it carried out of
// the Retriever, used only for the packing stage's tie-break.
type Candidate struct {
	Chunk       *store.Chunk
	FusionScore float64
}

// Config tunes one Assemble call.
type Config struct {
	ScorerModel        string // cheap model scoring relevance and conflicts
	GenerationModel    string // the model whose tokenizer and context window bound packing
	RelevanceThreshold int    // 0-10; chunks scoring below this are discarded
	TokenBudget        int    // max cumulative chunk tokens to pack
	MaxSourceSummaries int

	ProjectBriefPath string // local file path only; empty means no brief section
	BriefMaxTokens   int
	FeatureSpec      string // opaque text supplied by the caller
}

// Conflict is one pair of chunks judged to materially contradict each
// other, surfaced to the caller but never blocking assembly.
type Conflict struct {
	ChunkAID  int64  `json:"chunk_a"`
	ChunkBID  int64  `json:"chunk_b"`
	Topic     string `json:"topic"`
	ExcerptA  string `json:"excerpt_a"`
	ExcerptB  string `json:"excerpt_b"`
}

// Result is everything Assemble produces: the assembled prompt plus the
// bookkeeping a caller (or test) needs to inspect what went into it.
type Result struct {
	Prompt        string
	PackedChunks  []*store.Chunk
	Conflicts     []Conflict
	UsedSummaries []*store.SourceSummary
	Warnings      []string
}
