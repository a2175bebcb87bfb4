package retrieval

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
	"github.com/ragsmith/ragsmith/internal/gateway"
	"github.com/ragsmith/ragsmith/internal/store"
)

// Retriever runs hybrid BM25 + dense search against a Repository, fusing
// channels by Reciprocal Rank Fusion and hydrating the top results.
type Retriever struct {
	repo       *store.Repository
	gw         *gateway.Gateway
	classifier Classifier
}

// New builds a Retriever. classifier may be nil, in which case every query
// uses DefaultWeights.
func New(repo *store.Repository, gw *gateway.Gateway, classifier Classifier) *Retriever {
	return &Retriever{repo: repo, gw: gw, classifier: classifier}
}

// Search executes opts.Mode against query and returns up to opts.TopK
// fused results (chunk ids and scores; Hydrate resolves them to chunks).
// Dense search requires the embedding model named
// by opts.EmbeddingModel to have a matching vector index already recorded
// in the repository (created by a prior ingest); a query against a model
// that was never used to embed chunks fails fast rather than silently
// returning zero dense hits.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	if opts.Mode != ModeBM25 && opts.EmbeddingModel != "" {
		if _, ok := r.repo.VectorIndexInfo(opts.EmbeddingModel); !ok {
			return nil, coreerrors.ValidationError(
				fmt.Sprintf("no vector index for embedding model %q; it was never used at ingest time", opts.EmbeddingModel), nil)
		}
	}

	bm25Query := query
	denseQuery := query
	if opts.HyDEEnabled && opts.Mode != ModeBM25 {
		denseQuery = expandHyDE(ctx, r.gw, opts.HyDEModel, query)
	}

	var bm25Results []store.BM25Result
	var vecResults []*store.VectorResult

	switch opts.Mode {
	case ModeBM25:
		res, err := r.repo.SearchBM25(ctx, bm25Query, opts.TopK)
		if err != nil {
			return nil, err
		}
		bm25Results = res
	case ModeDense:
		res, err := r.searchDense(ctx, denseQuery, opts)
		if err != nil {
			return nil, err
		}
		vecResults = res
	default:
		var err error
		bm25Results, vecResults, err = r.parallelSearch(ctx, bm25Query, denseQuery, opts)
		if err != nil {
			return nil, err
		}
	}

	weights := DefaultWeights()
	if r.classifier != nil {
		weights = r.classifier.Weights(query)
	}

	fused := NewRRFFusionWithK(opts.RRFK).Fuse(bm25Results, vecResults, weights)
	if len(fused) > opts.TopK {
		fused = fused[:opts.TopK]
	}
	return fused, nil
}

// parallelSearch runs the BM25 and dense channels concurrently. Either
// channel failing does not abort the other; a channel that errors or
// returns no results simply contributes nothing to the fused ranking.
func (r *Retriever) parallelSearch(ctx context.Context, bm25Query, denseQuery string, opts Options) ([]store.BM25Result, []*store.VectorResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Results []store.BM25Result
	var vecResults []*store.VectorResult

	g.Go(func() error {
		res, err := r.repo.SearchBM25(gctx, bm25Query, opts.TopK)
		if err != nil {
			return nil // graceful degradation: dense channel may still succeed
		}
		bm25Results = res
		return nil
	})

	g.Go(func() error {
		res, err := r.searchDense(gctx, denseQuery, opts)
		if err != nil {
			return nil
		}
		vecResults = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return bm25Results, vecResults, nil
}

func (r *Retriever) searchDense(ctx context.Context, query string, opts Options) ([]*store.VectorResult, error) {
	embedResp, err := r.gw.Embed(ctx, gateway.EmbedRequest{Model: opts.EmbeddingModel, Texts: []string{query}})
	if err != nil {
		return nil, err
	}
	if len(embedResp.Vectors) == 0 {
		return nil, coreerrors.InternalError("embedding provider returned no vectors for query", nil)
	}
	return r.repo.SearchVector(ctx, opts.EmbeddingModel, embedResp.Vectors[0], opts.TopK)
}

// Hydrate resolves fused results into full store.Chunk records, preserving
// the fused ranking order.
func (r *Retriever) Hydrate(ctx context.Context, results []*Result) ([]*store.Chunk, error) {
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = strconv.FormatInt(res.ChunkID, 10)
	}
	chunks, err := r.repo.Hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	out := make([]*store.Chunk, 0, len(results))
	for _, res := range results {
		if c, ok := byID[res.ChunkID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
