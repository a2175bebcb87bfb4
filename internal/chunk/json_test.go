package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONChunker_ArrayProducesOneChunkPerElement(t *testing.T) {
	// Given: a JSON array of three objects
	content := `[{"a":1},{"b":2},{"c":3}]`
	c := NewJSONChunker(DefaultConfig(), nil)

	// When: chunking
	chunks, err := c.Chunk(context.Background(), &Input{SourcePath: "data.json", Content: []byte(content)})

	// Then: one chunk per array element, element_index following array position
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "0", chunks[0].Metadata["element_index"])
	assert.Equal(t, "1", chunks[1].Metadata["element_index"])
	assert.Equal(t, "2", chunks[2].Metadata["element_index"])
}

func TestJSONChunker_TopLevelObjectProducesOneChunk(t *testing.T) {
	content := `{"name": "widget", "count": 7}`
	c := NewJSONChunker(DefaultConfig(), nil)

	chunks, err := c.Chunk(context.Background(), &Input{SourcePath: "data.json", Content: []byte(content)})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "widget")
}

func TestJSONChunker_InvalidJSONReturnsError(t *testing.T) {
	c := NewJSONChunker(DefaultConfig(), nil)

	_, err := c.Chunk(context.Background(), &Input{SourcePath: "data.json", Content: []byte("not json")})

	assert.Error(t, err)
}

func TestJSONChunker_OversizedElementIsWindowSplit(t *testing.T) {
	big := `{"field": "`
	for i := 0; i < 300; i++ {
		big += "word "
	}
	big += `"}`

	cfg := DefaultConfig()
	cfg.JSONMaxTokens = 20
	c := NewJSONChunker(cfg, nil)

	chunks, err := c.Chunk(context.Background(), &Input{SourcePath: "data.json", Content: []byte("[" + big + "]")})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
}
