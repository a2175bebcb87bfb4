package chunk

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWindow_RespectsMaxTokens(t *testing.T) {
	// Given: 100 one-token words and a ceiling of 10
	words := make([]string, 100)
	for i := range words {
		words[i] = "w"
	}
	text := strings.Join(words, " ")

	// When: splitting with no overlap
	windows := splitWindow(text, 10, 0, fallbackCountWords)

	// Then: every window has at most 10 words, none are empty
	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.LessOrEqual(t, len(strings.Fields(w)), 10)
		assert.NotEmpty(t, w)
	}
}

func TestSplitWindow_OverlapRepeatsTrailingWords(t *testing.T) {
	words := make([]string, 20)
	for i := range words {
		words[i] = "w" + strconv.Itoa(i)
	}
	text := strings.Join(words, " ")

	windows := splitWindow(text, 10, 0.5, fallbackCountWords)

	require.Greater(t, len(windows), 1)
	// second window should start with words carried over from the first
	firstWords := strings.Fields(windows[0])
	secondWords := strings.Fields(windows[1])
	assert.NotEmpty(t, firstWords)
	assert.NotEmpty(t, secondWords)
	require.GreaterOrEqual(t, len(secondWords), 5)
	assert.Equal(t, firstWords[len(firstWords)-5:], secondWords[:5])
}

func TestSplitWindow_EmptyInputProducesNoWindows(t *testing.T) {
	windows := splitWindow("   ", 10, 0.1, fallbackCountWords)
	assert.Empty(t, windows)
}

// fallbackCountWords counts each space-separated token as exactly one
// token, making window boundaries deterministic and easy to assert on in
// tests (unlike fallbackTokenCounter's char-based approximation).
func fallbackCountWords(s string) int {
	return len(strings.Fields(s))
}
