package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragsmith/ragsmith/internal/gateway"
	"github.com/ragsmith/ragsmith/internal/store"
)

type stubCompleteProvider struct {
	name  string
	reply string
	err   error
}

func (s *stubCompleteProvider) Name() string { return s.name }

func (s *stubCompleteProvider) Complete(ctx context.Context, model string, req gateway.CompleteRequest) (*gateway.CompleteResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.CompleteResponse{Text: s.reply, Model: model, InputTokens: 10, OutputTokens: 5}, nil
}

func (s *stubCompleteProvider) Embed(ctx context.Context, model string, req gateway.EmbedRequest) (*gateway.EmbedResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubCompleteProvider) Transcribe(ctx context.Context, model string, req gateway.TranscribeRequest) (*gateway.TranscribeResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubCompleteProvider) CountTokens(model, text string) int { return len(text) / 4 }
func (s *stubCompleteProvider) ContextWindow(model string) int     { return 8192 }
func (s *stubCompleteProvider) ValidateCredentials() error         { return nil }

func newTestDriver(reply string, err error) *Driver {
	gw := gateway.New()
	gw.Register(&stubCompleteProvider{name: "stub", reply: reply, err: err})
	return New(gw)
}

func TestGenerate_AppendsFootnoteTrailerPerPackedChunk(t *testing.T) {
	d := newTestDriver("Here is the answer.", nil)
	chunks := []*store.Chunk{
		{ID: 1, SourcePath: "/docs/a.md", Metadata: map[string]string{"heading_path": "Intro > Setup"}},
		{ID: 2, SourcePath: "/docs/b.md"},
	}

	result, err := d.Generate(context.Background(), "prompt text", chunks, Options{Model: "stub/model", MaxTokens: 100})

	require.NoError(t, err)
	assert.Contains(t, result.Text, "Here is the answer.")
	assert.Contains(t, result.Text, "[^1]: /docs/a.md §Intro > Setup")
	assert.Contains(t, result.Text, "[^2]: /docs/b.md")
}

func TestGenerate_NoPackedChunksLeavesTextUnannotated(t *testing.T) {
	d := newTestDriver("Plain answer, no sources.", nil)

	result, err := d.Generate(context.Background(), "prompt text", nil, Options{Model: "stub/model"})

	require.NoError(t, err)
	assert.Equal(t, "Plain answer, no sources.", result.Text)
}

func TestGenerate_PropagatesGatewayError(t *testing.T) {
	d := newTestDriver("", errors.New("provider exploded"))

	_, err := d.Generate(context.Background(), "prompt text", nil, Options{Model: "stub/model"})

	require.Error(t, err)
}

func TestWriteAtomic_WritesFileAndRemovesTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "answer.md")

	err := WriteAtomic(outPath, dir, "final content", false)

	require.NoError(t, err)
	data, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, "final content", string(data))

	_, statErr := os.Stat(outPath + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteAtomic_RejectsPathEscapingRoot(t *testing.T) {
	dir := t.TempDir()

	err := WriteAtomic(filepath.Join(dir, "..", "escaped.md"), dir, "content", false)

	require.Error(t, err)
}

func TestWriteAtomic_RefusesToOverwriteWithoutConfirmation(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "answer.md")
	require.NoError(t, os.WriteFile(outPath, []byte("original"), 0o644))

	err := WriteAtomic(outPath, dir, "replacement", false)
	require.Error(t, err)

	data, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, "original", string(data))
}

func TestWriteAtomic_OverwritesWhenConfirmed(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "answer.md")
	require.NoError(t, os.WriteFile(outPath, []byte("original"), 0o644))

	err := WriteAtomic(outPath, dir, "replacement", true)
	require.NoError(t, err)

	data, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, "replacement", string(data))
}
