package store

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpen_SecondProcessCannotAcquireLock(t *testing.T) {
	// Given: a store already open in a directory
	dir := t.TempDir()
	repo, err := Open(dir)
	require.NoError(t, err)
	defer repo.Close()

	// When: a second process tries to open the same store
	_, err = Open(dir)

	// Then: it fails fast with the store-locked error rather than blocking
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock")
}

func TestUpsertSource_SamePathAndDigestIsNoOp(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first, present, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	assert.False(t, present)

	second, present, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertSource_DigestChangePurgesDependents(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)

	chunks := []*Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "old content"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))
	require.NoError(t, repo.WriteFullText(ctx, chunks[0].ID, chunks[0].Text))

	// When: the same path is re-ingested with a different digest
	revised, present, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-2", 20)
	require.NoError(t, err)
	assert.False(t, present)
	assert.Equal(t, src.ID, revised.ID)

	// Then: the old chunk and its full-text entry are gone
	hits, err := repo.SearchBM25(ctx, "old content", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestInsertChunks_AssignsAscendingIntegerIDs(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)

	chunks := []*Chunk{
		{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "first"},
		{SourceID: src.ID, SourcePath: src.Path, Ordinal: 1, Text: "second"},
	}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))

	assert.Greater(t, chunks[0].ID, int64(0))
	assert.Greater(t, chunks[1].ID, chunks[0].ID)
}

func TestWriteVector_RejectsUnknownChunk(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	err := repo.WriteVector(ctx, 999, "openai/text-embedding-3-small", []float32{0.1, 0.2})

	require.Error(t, err)
}

func TestEnsureVectorIndex_DimensionMismatchIsFatal(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.EnsureVectorIndex(ctx, "openai/text-embedding-3-small", 1536))

	err := repo.EnsureVectorIndex(ctx, "openai/text-embedding-3-small", 768)

	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1536, mismatch.Expected)
	assert.Equal(t, 768, mismatch.Got)
}

func TestWriteVectorThenSearchVector_RoundTrips(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	model := "openai/text-embedding-3-small"

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	chunks := []*Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "hello"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))

	require.NoError(t, repo.EnsureVectorIndex(ctx, model, 3))
	require.NoError(t, repo.WriteVector(ctx, chunks[0].ID, model, []float32{1, 0, 0}))

	results, err := repo.SearchVector(ctx, model, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchVector_UnknownModelReturnsError(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.SearchVector(ctx, "openai/text-embedding-3-small", []float32{1, 2, 3}, 5)

	require.Error(t, err)
}

func TestHydrate_ReturnsOnlyExistingChunksInRequestedOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	chunks := []*Chunk{
		{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "first"},
		{SourceID: src.ID, SourcePath: src.Path, Ordinal: 1, Text: "second"},
	}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))

	ids := []string{
		strconv.FormatInt(chunks[1].ID, 10),
		"999999", // does not exist
		strconv.FormatInt(chunks[0].ID, 10),
	}
	hydrated, err := repo.Hydrate(ctx, ids)

	require.NoError(t, err)
	require.Len(t, hydrated, 2)
	assert.Equal(t, "second", hydrated[0].Text)
	assert.Equal(t, "first", hydrated[1].Text)
}

func TestUpsertSummary_FetchSummaryRoundTrips(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)

	summary := &SourceSummary{SourceID: src.ID, Summary: "a short synopsis", Model: "anthropic/claude-haiku-4-5"}
	require.NoError(t, repo.UpsertSummary(ctx, summary))

	fetched, err := repo.FetchSummary(ctx, src.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "a short synopsis", fetched.Summary)
}

func TestFetchSummary_MissingReturnsNilNotError(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	fetched, err := repo.FetchSummary(ctx, "nonexistent")

	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestStats_ReflectsSourcesChunksAndVectorIndices(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	chunks := []*Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "hi"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))
	require.NoError(t, repo.EnsureVectorIndex(ctx, "openai/text-embedding-3-small", 3))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SourceCount)
	assert.Equal(t, 1, stats.ChunkCount)
	require.Len(t, stats.VectorIndices, 1)
}

func TestConsistencyCheck_FlagsChunkMissingFullText(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	chunks := []*Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "hi"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))
	// Deliberately skip WriteFullText.

	report, err := repo.ConsistencyCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksChecked)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueMissingFTS, report.Issues[0].Type)
}

func TestConsistencyCheck_CleanStoreHasNoIssues(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	chunks := []*Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "hi"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))
	require.NoError(t, repo.WriteFullText(ctx, chunks[0].ID, chunks[0].Text))

	report, err := repo.ConsistencyCheck(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestPurgeSource_RemovesChunksAndFullText(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	src, _, err := repo.UpsertSource(ctx, "/a/b.md", SourceTypeText, "digest-1", 10)
	require.NoError(t, err)
	chunks := []*Chunk{{SourceID: src.ID, SourcePath: src.Path, Ordinal: 0, Text: "searchable text"}}
	require.NoError(t, repo.InsertChunks(ctx, src.ID, chunks))
	require.NoError(t, repo.WriteFullText(ctx, chunks[0].ID, chunks[0].Text))

	require.NoError(t, repo.PurgeSource(ctx, src.ID))

	hits, err := repo.SearchBM25(ctx, "searchable text", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SourceCount)
	assert.Equal(t, 0, stats.ChunkCount)
}

func TestSlugForModel_NormalizesToLowercaseUnderscores(t *testing.T) {
	assert.Equal(t, "openai_text_embedding_3_small", SlugForModel("openai/text-embedding-3-small"))
	assert.Equal(t, "anthropic_claude_sonnet_4_5", SlugForModel("Anthropic/Claude-Sonnet-4.5"))
}

