// Package generate invokes the Gateway with an assembled prompt, annotates
// the result with source footnotes, and writes it atomically to disk.
package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
	"github.com/ragsmith/ragsmith/internal/gateway"
	"github.com/ragsmith/ragsmith/internal/ingest"
	"github.com/ragsmith/ragsmith/internal/store"
)

// Driver generates the final answer document from an assembled prompt.
type Driver struct {
	gw *gateway.Gateway
}

// New builds a Driver.
func New(gw *gateway.Gateway) *Driver {
	return &Driver{gw: gw}
}

// Options configures one Generate call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Result is the generated, footnote-annotated document plus bookkeeping.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Generate invokes the Gateway with prompt and appends one footnote
// trailer line per chunk in packedChunks, preserving any footnote
// references the model's own output already contains.
func (d *Driver) Generate(ctx context.Context, prompt string, packedChunks []*store.Chunk, opts Options) (*Result, error) {
	resp, err := d.gw.Complete(ctx, gateway.CompleteRequest{
		Model:       opts.Model,
		Messages:    []gateway.Message{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	text := annotateFootnotes(resp.Text, packedChunks)

	return &Result{
		Text:         text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// annotateFootnotes appends one "[^N]: source_path §metadata" trailer per
// packed chunk, in packing order, after whatever footnote references the
// model's own output already contains.
func annotateFootnotes(text string, packedChunks []*store.Chunk) string {
	if len(packedChunks) == 0 {
		return text
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(text, "\n"))
	sb.WriteString("\n\n")

	for i, c := range packedChunks {
		sb.WriteString(fmt.Sprintf("[^%d]: %s", i+1, c.SourcePath))
		if marker := metadataMarker(c.Metadata); marker != "" {
			sb.WriteString(" §")
			sb.WriteString(marker)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// metadataMarker picks the most specific locator a chunk's metadata
// carries, in descending specificity order.
func metadataMarker(metadata map[string]string) string {
	for _, key := range []string{"heading_path", "page_start", "chapter", "commit_hash", "url"} {
		if v, ok := metadata[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// WriteAtomic writes content to path via a temp-file-then-rename, the same
// pattern the store's vector index uses to persist itself. It refuses to
// write outside root, and refuses to overwrite an existing file unless
// overwrite is true.
func WriteAtomic(path, root string, content string, overwrite bool) error {
	confined, err := ingest.ConfinePath(path, root)
	if err != nil {
		return err
	}

	if !overwrite {
		if _, err := os.Stat(confined); err == nil {
			return coreerrors.ValidationError(
				fmt.Sprintf("output path %q already exists; pass an overwrite confirmation to replace it", confined), nil)
		}
	}

	dir := filepath.Dir(confined)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return coreerrors.IOError("failed to create output directory", err)
	}

	tmp := confined + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return coreerrors.IOError("failed to write temporary output file", err)
	}
	if err := os.Rename(tmp, confined); err != nil {
		_ = os.Remove(tmp)
		return coreerrors.IOError("failed to rename output file into place", err)
	}
	return nil
}
