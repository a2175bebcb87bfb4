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

const defaultFailOpenScore = 10

const relevancePromptHeader = `Score how relevant each numbered excerpt below is to the query, on an integer scale from 0 (irrelevant) to 10 (directly answers it). Reply with only a JSON array of integers, one per excerpt, in order. Do not include any other text.

Query: %s

Excerpts:
`

// scoreRelevance runs spec.md §4.6 step 1: a single batched completion
// scores every candidate 0-10 against the query. Any failure to call the
// model, or to parse its response, or a response shorter than the
// candidate list, fails open: the unscored candidates default to 10
// rather than being silently dropped.
func scoreRelevance(ctx context.Context, gw *gateway.Gateway, model, query string, candidates []Candidate) []int {
	scores := make([]int, len(candidates))
	for i := range scores {
		scores[i] = defaultFailOpenScore
	}
	if len(candidates) == 0 {
		return scores
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(relevancePromptHeader, query))
	for i, c := range candidates {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(c.Chunk.RawText)
		sb.WriteString("\n")
	}

	resp, err := gw.Complete(ctx, gateway.CompleteRequest{
		Model:       model,
		Messages:    []gateway.Message{{Role: "user", Content: sb.String()}},
		MaxTokens:   len(candidates)*4 + 32,
		Temperature: 0.0,
	})
	if err != nil {
		slog.Warn("relevance scoring failed, defaulting all candidates to score 10", slog.String("error", err.Error()))
		return scores
	}

	parsed, err := parseIntArray(resp.Text)
	if err != nil {
		slog.Warn("relevance scoring response was not a valid JSON integer array, defaulting to score 10",
			slog.String("error", err.Error()))
		return scores
	}

	for i := 0; i < len(scores) && i < len(parsed); i++ {
		scores[i] = parsed[i]
	}
	return scores
}

func parseIntArray(text string) ([]int, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	var values []int
	if err := json.Unmarshal([]byte(text[start:end+1]), &values); err != nil {
		return nil, err
	}
	return values, nil
}
