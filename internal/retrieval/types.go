// Package retrieval implements hybrid BM25 + dense search, fused by
// Reciprocal Rank Fusion, with optional query-side HyDE expansion.
package retrieval

// Mode selects which channel(s) a Search call consults.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeDense  Mode = "dense"
	ModeBM25   Mode = "bm25"
)

// Options configures one Search call.
type Options struct {
	Mode            Mode
	TopK            int
	RRFK            int // Reciprocal Rank Fusion smoothing constant, default 60
	HyDEEnabled     bool
	HyDEModel       string // completion model, "provider/model"
	EmbeddingModel  string // "provider/model", must match the model used at ingest
}

// DefaultOptions returns hybrid-mode defaults matching spec.md §4.5.
func DefaultOptions(embeddingModel string) Options {
	return Options{
		Mode:           ModeHybrid,
		TopK:           10,
		RRFK:           60,
		EmbeddingModel: embeddingModel,
	}
}

// Weights tunes each channel's contribution to the fused RRF score. The
// default 0.5/0.5 split preserves the same relative ranking as spec.md's
// unweighted Σ 1/(k+rank) formula; a Classifier may override it per query.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights is the hybrid-mode default, equivalent in ranking order to
// the spec's unweighted fusion formula.
func DefaultWeights() Weights { return Weights{BM25: 0.5, Semantic: 0.5} }

// Classifier dynamically reweights BM25 vs dense based on query shape (e.g.
// a query that looks like an exact phrase search favors BM25). Optional:
// Search falls back to DefaultWeights when none is configured, so hybrid
// mode's documented default behavior is unaffected unless a caller opts in.
type Classifier interface {
	Weights(query string) Weights
}

// Result is one fused search hit: a chunk id with its per-channel ranks and
// scores. It carries no chunk text; Retriever.Hydrate resolves it.
type Result struct {
	ChunkID     int64
	RRFScore    float64
	BM25Score   float64
	BM25Rank    int
	VecScore    float32
	VecRank     int
	InBothLists bool
}
