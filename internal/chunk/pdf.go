package chunk

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	coreerrors "github.com/ragsmith/ragsmith/internal/errors"
)

// PDFChunker accumulates page text until the token ceiling is reached, then
// starts a new chunk; any single page that alone exceeds the ceiling is
// further split by the shared fixed-window splitter.
type PDFChunker struct {
	maxTokens int
	overlap   float64
	counter   TokenCounter
}

func NewPDFChunker(cfg Config, counter TokenCounter) *PDFChunker {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &PDFChunker{maxTokens: cfg.PDFMaxTokens, overlap: cfg.PDFOverlap, counter: counter}
}

func (c *PDFChunker) Chunk(ctx context.Context, input *Input) ([]Chunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(input.Content), int64(len(input.Content)))
	if err != nil {
		return nil, coreerrors.UnsupportedSourceTypeError(input.SourcePath).WithDetail("reason", fmt.Sprintf("not a readable PDF: %v", err))
	}

	var chunks []Chunk
	ordinal := 0

	var buf strings.Builder
	startPage := 1
	flush := func(endPage int) {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		meta := map[string]string{
			"page_start": strconv.Itoa(startPage),
			"page_end":   strconv.Itoa(endPage),
		}
		if c.counter(content) <= c.maxTokens {
			chunks = append(chunks, Chunk{Ordinal: ordinal, Text: content, Metadata: meta})
			ordinal++
			return
		}
		sub := windowChunks(content, c.maxTokens, c.overlap, c.counter, meta, ordinal)
		chunks = append(chunks, sub...)
		ordinal += len(sub)
	}

	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages rather than fail the whole document
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		candidate := buf.String()
		if candidate != "" {
			candidate += "\n\n"
		}
		candidate += text

		if buf.Len() > 0 && c.counter(candidate) > c.maxTokens {
			flush(pageNum - 1)
			startPage = pageNum
			buf.WriteString(text)
			continue
		}
		buf.Reset()
		buf.WriteString(candidate)
	}
	flush(totalPages)

	return chunks, nil
}
