package retrieval

import (
	"sort"
	"strconv"

	"github.com/ragsmith/ragsmith/internal/store"
)

// RRFFusion combines a BM25 result list and a dense (vector) result list by
// Reciprocal Rank Fusion: score(c) = Σ_channel 1/(k+rank_channel(c)).
type RRFFusion struct {
	K int
}

// NewRRFFusion returns an RRFFusion using the default smoothing constant.
func NewRRFFusion() *RRFFusion { return &RRFFusion{K: 60} }

// NewRRFFusionWithK returns an RRFFusion using a caller-supplied smoothing
// constant.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = 60
	}
	return &RRFFusion{K: k}
}

const missingRankSentinel = -1

// Fuse merges a BM25 result list and a dense result list into one ranked
// slice. Either list may be empty (a channel that failed or returned
// nothing is still a valid input); fusion proceeds on whatever is present.
// weights scale each channel's RRF contribution before summing.
func (f *RRFFusion) Fuse(bm25 []store.BM25Result, vec []*store.VectorResult, weights Weights) []*Result {
	k := f.K
	if k <= 0 {
		k = 60
	}

	byID := make(map[int64]*Result)

	getOrCreate := func(id int64) *Result {
		r, ok := byID[id]
		if !ok {
			r = &Result{ChunkID: id, BM25Rank: missingRankSentinel, VecRank: missingRankSentinel}
			byID[id] = r
		}
		return r
	}

	for i, hit := range bm25 {
		id, err := strconv.ParseInt(hit.DocID, 10, 64)
		if err != nil {
			continue
		}
		rank := i + 1
		r := getOrCreate(id)
		r.BM25Score = hit.Score
		r.BM25Rank = rank
		r.RRFScore += weights.BM25 * (1.0 / float64(k+rank))
	}

	for i, hit := range vec {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		rank := i + 1
		r := getOrCreate(id)
		r.VecScore = hit.Score
		r.VecRank = rank
		r.RRFScore += weights.Semantic * (1.0 / float64(k+rank))
	}

	for _, r := range byID {
		r.InBothLists = r.BM25Rank != missingRankSentinel && r.VecRank != missingRankSentinel
	}

	results := make([]*Result, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return compare(results[i], results[j])
	})

	return results
}

// compare reports whether a should sort before b: descending RRF score,
// then ascending chunk id for determinism when scores tie exactly.
func compare(a, b *Result) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	return a.ChunkID < b.ChunkID
}
