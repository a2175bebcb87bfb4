package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragsmith/ragsmith/internal/gateway"
)

const hydePrompt = `Write a short, hypothetical passage that would directly answer the following question. Do not mention the question itself; write only the passage.

Question: %s`

// expandHyDE generates a hypothetical answer passage for query using model,
// for embedding in place of the raw query text. Failure is never fatal: the
// caller falls back to embedding the raw query, since HyDE is a precision
// aid, not a required step.
func expandHyDE(ctx context.Context, gw *gateway.Gateway, model, query string) string {
	if gw == nil || model == "" {
		return query
	}

	resp, err := gw.Complete(ctx, gateway.CompleteRequest{
		Model: model,
		Messages: []gateway.Message{
			{Role: "user", Content: fmt.Sprintf(hydePrompt, query)},
		},
		MaxTokens:   256,
		Temperature: 0.3,
	})
	if err != nil {
		slog.Warn("hyde expansion failed, falling back to raw query", slog.String("error", err.Error()))
		return query
	}
	if resp.Text == "" {
		return query
	}
	return resp.Text
}
