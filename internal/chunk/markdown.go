package chunk

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// MarkdownChunker splits at heading boundaries (H1/H2/H3), falling back to
// fixed-window splitting for headingless input or oversized sections.
// Adapted from the teacher's MarkdownChunker, generalised from a code-symbol
// store to a prose knowledge store: no frontmatter/MDX special-casing, no
// Symbol extraction, ordinals instead of line ranges.
type MarkdownChunker struct {
	maxTokens int
	overlap   float64
	counter   TokenCounter
}

func NewMarkdownChunker(cfg Config, counter TokenCounter) *MarkdownChunker {
	if counter == nil {
		counter = fallbackTokenCounter
	}
	return &MarkdownChunker{maxTokens: cfg.MarkdownMaxTokens, overlap: cfg.MarkdownOverlap, counter: counter}
}

var headingPattern = regexp.MustCompile(`(?m)^(#{1,3})\s+(.+)$`)

type mdSection struct {
	level      int
	title      string
	headerPath string
	content    string
}

func (c *MarkdownChunker) Chunk(ctx context.Context, input *Input) ([]Chunk, error) {
	text := string(input.Content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sections := parseMarkdownSections(text)
	if len(sections) == 0 {
		return windowChunks(text, c.maxTokens, c.overlap, c.counter, map[string]string{"heading_path": ""}, 0), nil
	}

	var chunks []Chunk
	ordinal := 0
	for _, sec := range sections {
		content := strings.TrimSpace(sec.content)
		if content == "" {
			continue
		}
		meta := map[string]string{
			"heading_path":  sec.headerPath,
			"heading_level": strconv.Itoa(sec.level),
			"heading_title": sec.title,
		}
		if c.counter(content) <= c.maxTokens {
			chunks = append(chunks, Chunk{Ordinal: ordinal, Text: content, Metadata: meta})
			ordinal++
			continue
		}
		sectionChunks := windowChunks(content, c.maxTokens, c.overlap, c.counter, meta, ordinal)
		chunks = append(chunks, sectionChunks...)
		ordinal += len(sectionChunks)
	}
	return chunks, nil
}

func parseMarkdownSections(text string) []mdSection {
	lines := strings.Split(text, "\n")
	var sections []mdSection
	headerStack := make([]string, 3)

	var current *mdSection
	var body strings.Builder

	closeSection := func() {
		if current != nil {
			current.content = body.String()
			sections = append(sections, *current)
			body.Reset()
		}
	}

	for _, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			closeSection()
			level := len(m[1])
			title := strings.TrimSpace(m[2])

			headerStack[level-1] = title
			for i := level; i < 3; i++ {
				headerStack[i] = ""
			}
			var parts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					parts = append(parts, headerStack[i])
				}
			}

			current = &mdSection{level: level, title: title, headerPath: strings.Join(parts, " > ")}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	closeSection()
	return sections
}
