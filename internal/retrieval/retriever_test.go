package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragsmith/ragsmith/internal/store"
)

func openTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	repo, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRetriever_BM25OnlySearchNeedsNoVectorIndex(t *testing.T) {
	// Given: a repository with one ingested, full-text-indexed chunk and no
	// vector index at all
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/docs/intro.md", store.SourceTypeText, "digest-1", 100)
	require.NoError(t, err)

	chunks := []*store.Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "retrieval augmented generation pipeline"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))
	require.NoError(t, repo.WriteFullText(ctx, chunks[0].ID, chunks[0].Text))

	r := New(repo, nil, nil)

	// When: searching in BM25-only mode
	results, err := r.Search(ctx, "retrieval augmented generation", Options{Mode: ModeBM25, TopK: 5, RRFK: 60})

	// Then: the fail-fast vector-index check never fires, the chunk is found
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRetriever_DenseSearchFailsFastWithoutMatchingVectorIndex(t *testing.T) {
	// Given: a repository with no vector index ever created for this model
	repo := openTestRepo(t)
	ctx := context.Background()
	r := New(repo, nil, nil)

	// When: hybrid search names an embedding model with no recorded index
	_, err := r.Search(context.Background(), "anything", Options{
		Mode:           ModeHybrid,
		TopK:           5,
		RRFK:           60,
		EmbeddingModel: "openai/text-embedding-3-small",
	})

	// Then: it fails fast instead of silently returning zero dense hits
	require.Error(t, err)
}

func TestRetriever_HydrateResolvesChunksInFusedOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/docs/a.md", store.SourceTypeText, "digest-2", 50)
	require.NoError(t, err)

	chunks := []*store.Chunk{
		{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "first"},
		{SourceID: src.ID, SourcePath: src.Path, Ordinal: 1, Text: "second"},
	}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))

	r := New(repo, nil, nil)
	fused := []*Result{
		{ChunkID: chunks[1].ID},
		{ChunkID: chunks[0].ID},
	}

	hydrated, err := r.Hydrate(ctx, fused)

	require.NoError(t, err)
	require.Len(t, hydrated, 2)
	require.Equal(t, "second", hydrated[0].Text)
	require.Equal(t, "first", hydrated[1].Text)
}
