package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, RetrievalModeHybrid, cfg.Retrieval.Mode)
	assert.Equal(t, 60, cfg.Retrieval.RRFK)
	assert.Equal(t, 20, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.HyDE)
	assert.Equal(t, 5, cfg.Generation.MaxSourceSummaries)
	assert.Equal(t, 51, cfg.Chunkers["markdown"].Overlap)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir()) // isolate from any real global config

	yamlContent := []byte("retrieval:\n  top_k: 42\n  hyde: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ragsmith.yaml"), yamlContent, 0o644))

	cfg, err := Load(dir, FlagOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.HyDE)
}

func TestLoad_EnvOverridesProjectFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	yamlContent := []byte("retrieval:\n  top_k: 42\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ragsmith.yaml"), yamlContent, 0o644))
	t.Setenv("RAGSMITH_RETRIEVAL_TOP_K", "99")

	cfg, err := Load(dir, FlagOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Retrieval.TopK)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("RAGSMITH_RETRIEVAL_TOP_K", "99")

	cfg, err := Load(dir, FlagOverrides{TopK: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestValidate_RejectsBadRetrievalMode(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.Mode = "quantum"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsURLBrief(t *testing.T) {
	cfg := NewConfig()
	cfg.Project.Brief = "https://example.com/brief.md"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOverlapGreaterThanChunkSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunkers["markdown"] = ChunkerConfig{ChunkSize: 100, Overlap: 200}
	assert.Error(t, cfg.Validate())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.TopK = 15
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := loadYAMLIfExists(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 15, loaded.Retrieval.TopK)
}
