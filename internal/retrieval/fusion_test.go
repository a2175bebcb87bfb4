package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragsmith/ragsmith/internal/store"
)

func TestRRFFusion_ChunkInBothListsRanksAboveSingleChannel(t *testing.T) {
	// Given: chunk 1 appears in both channels, chunk 2 only in BM25
	bm25 := []store.BM25Result{
		{DocID: "1", Score: 5.0},
		{DocID: "2", Score: 3.0},
	}
	vec := []*store.VectorResult{
		{ID: "1", Score: 0.9},
	}

	// When: fusing with default weights
	fused := NewRRFFusion().Fuse(bm25, vec, DefaultWeights())

	// Then: chunk 1 ranks first and is flagged as present in both lists
	require.Len(t, fused, 2)
	assert.Equal(t, int64(1), fused[0].ChunkID)
	assert.True(t, fused[0].InBothLists)
	assert.False(t, fused[1].InBothLists)
}

func TestRRFFusion_TiesBreakByAscendingChunkID(t *testing.T) {
	// Given: two chunks with identical rank-1 scores in a single channel,
	// which is impossible from one BM25 list alone, so construct the tie
	// directly via two channels that individually place each chunk first.
	bm25 := []store.BM25Result{
		{DocID: "5", Score: 1.0},
	}
	vec := []*store.VectorResult{
		{ID: "2", Score: 1.0},
	}

	fused := NewRRFFusion().Fuse(bm25, vec, DefaultWeights())

	// Both contribute 1/(60+1) under equal weights, so they tie exactly;
	// ascending chunk id must decide the order.
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].RRFScore, fused[1].RRFScore, 1e-12)
	assert.Equal(t, int64(2), fused[0].ChunkID)
	assert.Equal(t, int64(5), fused[1].ChunkID)
}

func TestRRFFusion_EmptyChannelStillProducesResults(t *testing.T) {
	bm25 := []store.BM25Result{
		{DocID: "1", Score: 1.0},
		{DocID: "2", Score: 0.5},
	}

	fused := NewRRFFusion().Fuse(bm25, nil, DefaultWeights())

	require.Len(t, fused, 2)
	for _, r := range fused {
		assert.False(t, r.InBothLists)
	}
}

func TestRRFFusion_BothChannelsEmptyProducesNoResults(t *testing.T) {
	fused := NewRRFFusion().Fuse(nil, nil, DefaultWeights())
	assert.Empty(t, fused)
}

func TestRRFFusion_DefaultKUsedWhenNonPositive(t *testing.T) {
	f := NewRRFFusionWithK(0)
	assert.Equal(t, 60, f.K)
}

func TestRRFFusion_MalformedVectorIDIsSkipped(t *testing.T) {
	vec := []*store.VectorResult{
		{ID: "not-an-int", Score: 0.9},
		{ID: "7", Score: 0.8},
	}

	fused := NewRRFFusion().Fuse(nil, vec, DefaultWeights())

	require.Len(t, fused, 1)
	assert.Equal(t, int64(7), fused[0].ChunkID)
}
