package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ragsmith/ragsmith/internal/gateway"
)

const conflictPromptHeader = `Identify pairs of the numbered excerpts below that materially contradict each other on a matter of fact (e.g. different values for the same quantity). Reply with only a JSON array of objects, each with keys "chunk_a", "chunk_b" (the 1-based excerpt numbers), "topic", "excerpt_a" and "excerpt_b" (short quotes). If there are no contradictions, reply with an empty array []. Do not include any other text.

Excerpts:
`

type rawConflict struct {
	ChunkA   int    `json:"chunk_a"`
	ChunkB   int    `json:"chunk_b"`
	Topic    string `json:"topic"`
	ExcerptA string `json:"excerpt_a"`
	ExcerptB string `json:"excerpt_b"`
}

// detectConflicts runs spec.md §4.6 step 2. Failure is non-fatal: it
// returns an empty list rather than blocking assembly.
func detectConflicts(ctx context.Context, gw *gateway.Gateway, model string, candidates []Candidate) []Conflict {
	if len(candidates) < 2 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(conflictPromptHeader)
	for i, c := range candidates {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(c.Chunk.RawText)
		sb.WriteString("\n")
	}

	resp, err := gw.Complete(ctx, gateway.CompleteRequest{
		Model:       model,
		Messages:    []gateway.Message{{Role: "user", Content: sb.String()}},
		MaxTokens:   512,
		Temperature: 0.0,
	})
	if err != nil {
		slog.Warn("conflict detection failed, treating as no conflicts", slog.String("error", err.Error()))
		return nil
	}

	raws, err := parseConflicts(resp.Text)
	if err != nil {
		slog.Warn("conflict detection response was not valid JSON, treating as no conflicts", slog.String("error", err.Error()))
		return nil
	}

	conflicts := make([]Conflict, 0, len(raws))
	for _, r := range raws {
		if r.ChunkA < 1 || r.ChunkA > len(candidates) || r.ChunkB < 1 || r.ChunkB > len(candidates) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			ChunkAID: candidates[r.ChunkA-1].Chunk.ID,
			ChunkBID: candidates[r.ChunkB-1].Chunk.ID,
			Topic:    r.Topic,
			ExcerptA: r.ExcerptA,
			ExcerptB: r.ExcerptB,
		})
	}
	return conflicts
}

func parseConflicts(text string) ([]rawConflict, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	var values []rawConflict
	if err := json.Unmarshal([]byte(text[start:end+1]), &values); err != nil {
		return nil, err
	}
	return values, nil
}
