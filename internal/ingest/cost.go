package ingest

import (
	"fmt"

	"github.com/ragsmith/ragsmith/internal/gateway"
)

// estimateCost builds step 4's cost preview: one context-prefix call per
// estimated chunk, plus one summary call, warning when contextModel isn't
// cheap-tier since a non-cheap model multiplied by chunk count is the
// scenario a preview exists to catch before it happens silently.
func estimateCost(estimatedChunks int, contextModel string) *CostPreview {
	preview := &CostPreview{
		EstimatedChunks:   estimatedChunks,
		EstimatedLLMCalls: estimatedChunks + 1,
		ContextModel:      contextModel,
	}
	if !gateway.IsCheapTier(contextModel) {
		preview.Warning = fmt.Sprintf(
			"context-prefix model %q is not a known cheap-tier model; this ingest will make %d completion calls against it",
			contextModel, estimatedChunks)
	}
	return preview
}

// estimateChunkCount approximates the chunk count from raw byte size before
// chunking actually runs, using a rough chars-per-chunk figure derived from
// the family's configured token ceiling (roughly 4 chars/token).
func estimateChunkCount(contentSize int, maxTokensPerChunk int) int {
	if maxTokensPerChunk <= 0 {
		maxTokensPerChunk = 512
	}
	charsPerChunk := maxTokensPerChunk * 4
	if contentSize <= 0 {
		return 0
	}
	n := (contentSize + charsPerChunk - 1) / charsPerChunk
	if n < 1 {
		n = 1
	}
	return n
}
