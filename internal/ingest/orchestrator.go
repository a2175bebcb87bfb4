package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ragsmith/ragsmith/internal/chunk"
	"github.com/ragsmith/ragsmith/internal/config"
	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
	"github.com/ragsmith/ragsmith/internal/gateway"
	"github.com/ragsmith/ragsmith/internal/store"
)

// contextPrefixConcurrency bounds how many context-prefix completion calls
// run at once, generalising the teacher's fixed two-goroutine fan-out into
// an errgroup with a configurable limit.
const contextPrefixConcurrency = 4

// embeddingBatchSize is how many chunk texts are embedded per Gateway call.
const embeddingBatchSize = 32

const contextPrefixPrompt = `Write one short sentence (no more than 30 words) that situates the following excerpt within its source document, so a reader encountering only the excerpt understands what it is part of. Reply with only that sentence.

Source: %s

Excerpt:
%s`

const summaryPrompt = `Write a concise summary of the following document in no more than %d tokens.

%s`

// Orchestrator drives the nine-step ingest pipeline described by the
// knowledge store's ingest contract: validate the path, compute its
// digest, decide whether it is new/unchanged/revised, preview cost,
// chunk, generate context prefixes, embed, summarize and commit.
type Orchestrator struct {
	repo     *store.Repository
	gw       *gateway.Gateway
	chunkers *chunk.Registry
	cfg      *config.Config
}

// New builds an Orchestrator from its collaborators.
func New(repo *store.Repository, gw *gateway.Gateway, chunkers *chunk.Registry, cfg *config.Config) *Orchestrator {
	return &Orchestrator{repo: repo, gw: gw, chunkers: chunkers, cfg: cfg}
}

func (o *Orchestrator) resolveOptions(opts Options) Options {
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = o.cfg.Embedding.Model
	}
	if opts.ContextModel == "" {
		opts.ContextModel = o.cfg.Embedding.ContextModel
	}
	if opts.SummaryModel == "" {
		opts.SummaryModel = o.cfg.Ingest.SummaryModel
	}
	if opts.SummaryMaxTokens == 0 {
		opts.SummaryMaxTokens = o.cfg.Ingest.SummaryMaxTokens
	}
	return opts
}

// Ingest runs all nine steps for one source. content is the source's raw
// bytes for file-based families (markdown, pdf, epub, text, json, audio);
// it may be nil for self-fetching families (web, vcs_history), whose
// chunkers read sourcePath directly and whose digest is instead computed
// from the chunked output, since there is no local byte buffer to hash
// up front.
func (o *Orchestrator) Ingest(ctx context.Context, sourcePath string, content []byte, opts Options) (*Result, error) {
	opts = o.resolveOptions(opts)

	validated, err := validatePath(sourcePath, opts.ProjectRoot)
	if err != nil {
		return nil, err
	}

	family, err := chunk.DetectFamily(validated, opts.MetadataHint)
	if err != nil {
		return nil, err
	}
	sourceType := store.SourceType(family)

	chunkerCfg := o.cfg.Chunkers[string(family)]

	existing, err := o.repo.SourceByPath(ctx, validated)
	if err != nil {
		return nil, err
	}

	var chunks []chunk.Chunk
	var digest string
	var totalBytes int64

	if len(content) > 0 {
		// File-based sources can digest before chunking, so a no-op
		// re-ingest never runs the cost preview or touches the store.
		digest = sha256Hex(content)
		totalBytes = int64(len(content))
		if existing != nil && existing.Digest == digest {
			return &Result{Source: existing, AlreadyPresent: true, ChunkCount: existing.ChunkCount}, nil
		}

		preview := estimateCost(estimateChunkCount(len(content), chunkerCfg.ChunkSize), opts.ContextModel)
		if preview.Warning != "" && !opts.AutoConfirmCost {
			return &Result{Preview: preview}, nil
		}

		chunks, err = o.chunkSource(ctx, family, validated, content, opts.MetadataHint)
		if err != nil {
			return nil, err
		}
	} else {
		// Self-fetching sources (web, vcs_history) have no local byte
		// buffer to hash before chunking, so their digest is computed from
		// the chunked output instead. The dedup check still runs before
		// any LLM call: a matching digest discards the freshly built
		// chunks without spending a context-prefix or embedding call.
		chunks, err = o.chunkSource(ctx, family, validated, content, opts.MetadataHint)
		if err != nil {
			return nil, err
		}
		digest, totalBytes = digestChunks(chunks)
		if existing != nil && existing.Digest == digest {
			return &Result{Source: existing, AlreadyPresent: true, ChunkCount: existing.ChunkCount}, nil
		}

		preview := estimateCost(len(chunks), opts.ContextModel)
		if preview.Warning != "" && !opts.AutoConfirmCost {
			return &Result{Preview: preview}, nil
		}
	}

	src, present, err := o.repo.UpsertSource(ctx, validated, sourceType, digest, totalBytes)
	if err != nil {
		return nil, err
	}
	if present {
		return &Result{Source: src, AlreadyPresent: true, ChunkCount: src.ChunkCount}, nil
	}

	return o.processAndCommit(ctx, src, chunks, opts)
}

// Reingest forces a source to be re-chunked, re-embedded and
// re-summarized even if its content has not changed, by purging any
// existing record before re-running Ingest's normal dedup path.
func (o *Orchestrator) Reingest(ctx context.Context, sourcePath string, content []byte, opts Options) (*Result, error) {
	opts = o.resolveOptions(opts)
	validated, err := validatePath(sourcePath, opts.ProjectRoot)
	if err != nil {
		return nil, err
	}

	existing, err := o.repo.SourceByPath(ctx, validated)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := o.repo.PurgeSource(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	opts.AutoConfirmCost = true
	return o.Ingest(ctx, sourcePath, content, opts)
}

func (o *Orchestrator) chunkSource(ctx context.Context, family chunk.Family, path string, content []byte, metadataHint map[string]string) ([]chunk.Chunk, error) {
	chunker, err := o.chunkers.ChunkerFor(family)
	if err != nil {
		return nil, coreerrors.UnsupportedSourceTypeError(path).WithDetail("family", string(family))
	}
	chunks, err := chunker.Chunk(ctx, &chunk.Input{SourcePath: path, Content: content, MetadataHint: metadataHint})
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeChunkingFailed, err)
	}
	return chunks, nil
}

func digestChunks(chunks []chunk.Chunk) (digest string, totalBytes int64) {
	h := sha256.New()
	var n int64
	for _, c := range chunks {
		h.Write([]byte(c.Text))
		n += int64(len(c.Text))
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}

// processAndCommit runs steps 6-9: context prefixing, embedding, summary
// and commit. On any failure it purges src so no partial rows survive.
func (o *Orchestrator) processAndCommit(ctx context.Context, src *store.Source, chunks []chunk.Chunk, opts Options) (*Result, error) {
	if len(chunks) == 0 {
		return &Result{Source: src, ChunkCount: 0}, nil
	}

	prefixes, err := o.generateContextPrefixes(ctx, src.Path, chunks, opts.ContextModel)
	if err != nil {
		_ = o.repo.PurgeSource(ctx, src.ID)
		return nil, err
	}

	embedTexts := make([]string, len(chunks))
	for i, c := range chunks {
		embedTexts[i] = prefixes[i] + "\n\n" + c.Text
	}

	vectors, err := o.embedBatched(ctx, opts.EmbeddingModel, embedTexts)
	if err != nil {
		_ = o.repo.PurgeSource(ctx, src.ID)
		return nil, err
	}

	storeChunks := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		storeChunks[i] = &store.Chunk{
			SourceID:     src.ID,
			SourcePath:   src.Path,
			Ordinal:      c.Ordinal,
			Text:         embedTexts[i],
			RawText:      c.Text,
			Metadata:     c.Metadata,
			EmbeddingDim: len(vectors[i]),
			Model:        opts.EmbeddingModel,
		}
	}

	if err := o.repo.InsertChunks(ctx, src.ID, storeChunks); err != nil {
		_ = o.repo.PurgeSource(ctx, src.ID)
		return nil, err
	}

	if err := o.repo.EnsureVectorIndex(ctx, opts.EmbeddingModel, len(vectors[0])); err != nil {
		_ = o.repo.PurgeSource(ctx, src.ID)
		return nil, err
	}

	for i, c := range storeChunks {
		if err := o.repo.WriteVector(ctx, c.ID, opts.EmbeddingModel, vectors[i]); err != nil {
			_ = o.repo.PurgeSource(ctx, src.ID)
			return nil, err
		}
		if err := o.repo.WriteFullText(ctx, c.ID, c.Text); err != nil {
			_ = o.repo.PurgeSource(ctx, src.ID)
			return nil, err
		}
	}

	summary, err := o.generateSummary(ctx, src.Path, chunks, opts.SummaryModel, opts.SummaryMaxTokens)
	if err != nil {
		_ = o.repo.PurgeSource(ctx, src.ID)
		return nil, err
	}
	if summary != "" {
		if err := o.repo.UpsertSummary(ctx, &store.SourceSummary{
			SourceID: src.ID,
			Summary:  summary,
			Model:    opts.SummaryModel,
		}); err != nil {
			_ = o.repo.PurgeSource(ctx, src.ID)
			return nil, err
		}
	}

	if err := o.repo.SaveVectorIndices(ctx); err != nil {
		_ = o.repo.PurgeSource(ctx, src.ID)
		return nil, err
	}

	return &Result{Source: src, ChunkCount: len(chunks)}, nil
}

// generateContextPrefixes runs step 6: one cheap completion per chunk,
// bounded to contextPrefixConcurrency concurrent calls via errgroup,
// generalising the teacher's fixed two-goroutine parallelSearch pattern
// into an arbitrary-width bounded fan-out.
func (o *Orchestrator) generateContextPrefixes(ctx context.Context, sourcePath string, chunks []chunk.Chunk, model string) ([]string, error) {
	prefixes := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(contextPrefixConcurrency)

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			resp, err := o.gw.Complete(gctx, gateway.CompleteRequest{
				Model: model,
				Messages: []gateway.Message{
					{Role: "user", Content: fmt.Sprintf(contextPrefixPrompt, sourcePath, c.Text)},
				},
				MaxTokens:   64,
				Temperature: 0.0,
			})
			if err != nil {
				return coreerrors.Wrap(coreerrors.ErrCodeFatalProvider, err)
			}
			prefixes[i] = strings.TrimSpace(resp.Text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prefixes, nil
}

// embedBatched runs step 7, embedding embeddingBatchSize texts per Gateway
// call, matching the teacher's chunked-embedding batching discipline.
func (o *Orchestrator) embedBatched(ctx context.Context, model string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := o.gw.Embed(ctx, gateway.EmbedRequest{Model: model, Texts: texts[start:end]})
		if err != nil {
			return nil, err
		}
		if len(resp.Vectors) != end-start {
			return nil, coreerrors.InternalError(
				fmt.Sprintf("embedding provider returned %d vectors for %d texts", len(resp.Vectors), end-start), nil)
		}
		vectors = append(vectors, resp.Vectors...)
	}
	return vectors, nil
}

// generateSummary runs step 8: one bounded-length completion over the
// document's concatenated chunk text.
func (o *Orchestrator) generateSummary(ctx context.Context, sourcePath string, chunks []chunk.Chunk, model string, maxTokens int) (string, error) {
	if model == "" {
		return "", nil
	}
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
	}

	resp, err := o.gw.Complete(ctx, gateway.CompleteRequest{
		Model: model,
		Messages: []gateway.Message{
			{Role: "user", Content: fmt.Sprintf(summaryPrompt, maxTokens, sb.String())},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	return strings.TrimSpace(resp.Text), nil
}
