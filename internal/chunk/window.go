package chunk

import "strings"

// splitWindow splits text into a sequence of chunk texts of at most
// maxTokens (per counter), with floor(maxTokens*overlap) tokens of trailing
// context repeated at the start of each chunk after the first. Splitting
// happens at whitespace boundaries so words are never cut mid-token.
//
// This is the fixed-window primitive shared by the Plain text, PDF, EPUB,
// JSON-fallback, Web and Audio chunkers — each differs only in how it
// accumulates the words handed to this function and in the metadata it
// attaches afterward.
func splitWindow(text string, maxTokens int, overlap float64, counter TokenCounter) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = DefaultTextTokens
	}
	overlapTokens := int(float64(maxTokens) * overlap)

	var windows []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		windows = append(windows, strings.Join(current, " "))
	}

	i := 0
	for i < len(words) {
		word := words[i]
		wordTokens := counter(word)
		if wordTokens == 0 {
			wordTokens = 1
		}

		if currentTokens > 0 && currentTokens+wordTokens > maxTokens {
			flush()

			// Seed the next window with the trailing overlapTokens worth of
			// words from the window just flushed.
			var overlapWords []string
			overlapBudget := overlapTokens
			for j := len(current) - 1; j >= 0 && overlapBudget > 0; j-- {
				t := counter(current[j])
				if t == 0 {
					t = 1
				}
				if t > overlapBudget {
					break
				}
				overlapWords = append([]string{current[j]}, overlapWords...)
				overlapBudget -= t
			}

			current = overlapWords
			currentTokens = 0
			for _, w := range current {
				t := counter(w)
				if t == 0 {
					t = 1
				}
				currentTokens += t
			}
		}

		current = append(current, word)
		currentTokens += wordTokens
		i++
	}
	flush()

	return windows
}

// windowChunks runs splitWindow over text and wraps each resulting window in
// a Chunk, stamping a copy of the given base metadata onto every one. No
// per-window key is added; windows are told apart by their ordinals.
func windowChunks(text string, maxTokens int, overlap float64, counter TokenCounter, baseMeta map[string]string, startOrdinal int) []Chunk {
	windows := splitWindow(text, maxTokens, overlap, counter)
	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		meta := make(map[string]string, len(baseMeta)+1)
		for k, v := range baseMeta {
			meta[k] = v
		}
		chunks = append(chunks, Chunk{
			Ordinal:  startOrdinal + i,
			Text:     w,
			Metadata: meta,
		})
	}
	return chunks
}
