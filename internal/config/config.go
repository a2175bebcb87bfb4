// Package config loads the layered configuration for the ingest,
// retrieval and assembly pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete, merged configuration. Field names mirror the
// dotted keys of spec.md §6 (project.*, embedding.*, generation.*,
// retrieval.*, chunkers.<family>.*, ingest.*).
type Config struct {
	Project    ProjectConfig              `yaml:"project" json:"project"`
	Embedding  EmbeddingConfig            `yaml:"embedding" json:"embedding"`
	Generation GenerationConfig           `yaml:"generation" json:"generation"`
	Retrieval  RetrievalConfig            `yaml:"retrieval" json:"retrieval"`
	Chunkers   map[string]ChunkerConfig   `yaml:"chunkers" json:"chunkers"`
	Ingest     IngestConfig               `yaml:"ingest" json:"ingest"`
}

// ProjectConfig configures the project brief — a short, local,
// human-authored description prepended to every assembled prompt.
type ProjectConfig struct {
	// Brief is a local file path only; URLs are rejected at load time.
	Brief string `yaml:"brief" json:"brief"`
	// BriefMaxTokens bounds how much of Brief is included.
	BriefMaxTokens int `yaml:"brief_max_tokens" json:"brief_max_tokens"`
}

// EmbeddingConfig configures the embedding model used to build the
// vector index, and the cheaper model used to generate each chunk's
// situating context prefix during ingest. Query-time HyDE expansion uses
// its own model, RetrievalConfig.HyDEModel.
type EmbeddingConfig struct {
	Model        string `yaml:"model" json:"model"`
	ContextModel string `yaml:"context_model" json:"context_model"`
}

// GenerationConfig configures the final-answer model and how many
// source summaries may be folded into its prompt.
type GenerationConfig struct {
	Model                string `yaml:"model" json:"model"`
	MaxSourceSummaries   int    `yaml:"max_source_summaries" json:"max_source_summaries"`
}

// RetrievalMode selects which channels the Retriever executes.
type RetrievalMode string

const (
	RetrievalModeHybrid RetrievalMode = "hybrid"
	RetrievalModeDense  RetrievalMode = "dense"
	RetrievalModeBM25   RetrievalMode = "bm25"
)

// RetrievalConfig configures the hybrid retriever.
type RetrievalConfig struct {
	Mode               RetrievalMode `yaml:"mode" json:"mode"`
	TopK               int           `yaml:"top_k" json:"top_k"`
	RRFK               int           `yaml:"rrf_k" json:"rrf_k"`
	HyDE               bool          `yaml:"hyde" json:"hyde"`
	HyDEModel          string        `yaml:"hyde_model" json:"hyde_model"`
	ScorerModel        string        `yaml:"scorer_model" json:"scorer_model"`
	RelevanceThreshold int           `yaml:"relevance_threshold" json:"relevance_threshold"`
	TokenBudget        int           `yaml:"token_budget" json:"token_budget"`
}

// ChunkerConfig configures one chunker family's size/overlap policy.
type ChunkerConfig struct {
	ChunkSize int    `yaml:"chunk_size" json:"chunk_size"`
	Overlap   int    `yaml:"overlap" json:"overlap"`
	Strategy  string `yaml:"strategy,omitempty" json:"strategy,omitempty"` // markdown only: heading_aware|fixed_window
}

// IngestConfig configures source-summary generation during ingest.
type IngestConfig struct {
	SummaryModel     string `yaml:"summary_model" json:"summary_model"`
	SummaryMaxTokens int    `yaml:"summary_max_tokens" json:"summary_max_tokens"`
}

// Default chunk-size/overlap policy per family, matching spec.md's
// chunker table (§4.3).
var defaultChunkers = map[string]ChunkerConfig{
	"markdown":    {ChunkSize: 512, Overlap: 51, Strategy: "heading_aware"},
	"pdf":         {ChunkSize: 400, Overlap: 80},
	"epub":        {ChunkSize: 800, Overlap: 80},
	"text":        {ChunkSize: 512, Overlap: 51},
	"json":        {ChunkSize: 300, Overlap: 0},
	"vcs_history": {ChunkSize: 600, Overlap: 0},
	"web":         {ChunkSize: 512, Overlap: 51},
	"audio":       {ChunkSize: 512, Overlap: 51},
}

// NewConfig creates a Config populated with built-in defaults — the
// lowest-precedence layer of spec.md §6.
func NewConfig() *Config {
	chunkers := make(map[string]ChunkerConfig, len(defaultChunkers))
	for k, v := range defaultChunkers {
		chunkers[k] = v
	}

	return &Config{
		Project: ProjectConfig{
			BriefMaxTokens: 512,
		},
		Embedding: EmbeddingConfig{
			Model:        "openai/text-embedding-3-small",
			ContextModel: "ollama/qwen3:0.6b",
		},
		Generation: GenerationConfig{
			Model:              "anthropic/claude-sonnet-4-5",
			MaxSourceSummaries: 5,
		},
		Retrieval: RetrievalConfig{
			Mode:               RetrievalModeHybrid,
			TopK:               20,
			RRFK:               60,
			HyDE:               false,
			HyDEModel:          "ollama/qwen3:0.6b",
			ScorerModel:        "ollama/qwen3:0.6b",
			RelevanceThreshold: 5,
			TokenBudget:        6000,
		},
		Chunkers: chunkers,
		Ingest: IngestConfig{
			SummaryModel:     "ollama/qwen3:0.6b",
			SummaryMaxTokens: 256,
		},
	}
}

// GetUserConfigPath returns the path to the global configuration file,
// following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/ragsmith/config.yaml (if set)
//   - ~/.config/ragsmith/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragsmith", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragsmith", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragsmith", "config.yaml")
}

// Load merges configuration in spec.md §6's precedence order (high to
// low): flags (via FlagOverrides) → environment variables → per-project
// config file (.ragsmith.yaml in dir) → global config file → defaults.
func Load(dir string, flags FlagOverrides) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadYAMLIfExists(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	projectPath := filepath.Join(dir, ".ragsmith.yaml")
	if projCfg, err := loadYAMLIfExists(projectPath); err != nil {
		return nil, fmt.Errorf("failed to load project config %s: %w", projectPath, err)
	} else if projCfg != nil {
		cfg.mergeWith(projCfg)
	}

	cfg.applyEnvOverrides()
	flags.applyTo(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FlagOverrides carries explicit invocation-flag values, the
// highest-precedence configuration layer. Zero values mean "not set by
// a flag" and are not applied.
type FlagOverrides struct {
	RetrievalMode string
	TopK          int
	HyDE          *bool
}

func (f FlagOverrides) applyTo(c *Config) {
	if f.RetrievalMode != "" {
		c.Retrieval.Mode = RetrievalMode(f.RetrievalMode)
	}
	if f.TopK != 0 {
		c.Retrieval.TopK = f.TopK
	}
	if f.HyDE != nil {
		c.Retrieval.HyDE = *f.HyDE
	}
}

func loadYAMLIfExists(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &parsed, nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Project.Brief != "" {
		c.Project.Brief = other.Project.Brief
	}
	if other.Project.BriefMaxTokens != 0 {
		c.Project.BriefMaxTokens = other.Project.BriefMaxTokens
	}

	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.ContextModel != "" {
		c.Embedding.ContextModel = other.Embedding.ContextModel
	}

	if other.Generation.Model != "" {
		c.Generation.Model = other.Generation.Model
	}
	if other.Generation.MaxSourceSummaries != 0 {
		c.Generation.MaxSourceSummaries = other.Generation.MaxSourceSummaries
	}

	if other.Retrieval.Mode != "" {
		c.Retrieval.Mode = other.Retrieval.Mode
	}
	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.RRFK != 0 {
		c.Retrieval.RRFK = other.Retrieval.RRFK
	}
	if other.Retrieval.HyDE {
		c.Retrieval.HyDE = other.Retrieval.HyDE
	}
	if other.Retrieval.HyDEModel != "" {
		c.Retrieval.HyDEModel = other.Retrieval.HyDEModel
	}
	if other.Retrieval.ScorerModel != "" {
		c.Retrieval.ScorerModel = other.Retrieval.ScorerModel
	}
	if other.Retrieval.RelevanceThreshold != 0 {
		c.Retrieval.RelevanceThreshold = other.Retrieval.RelevanceThreshold
	}
	if other.Retrieval.TokenBudget != 0 {
		c.Retrieval.TokenBudget = other.Retrieval.TokenBudget
	}

	for family, cc := range other.Chunkers {
		merged := c.Chunkers[family]
		if cc.ChunkSize != 0 {
			merged.ChunkSize = cc.ChunkSize
		}
		if cc.Overlap != 0 {
			merged.Overlap = cc.Overlap
		}
		if cc.Strategy != "" {
			merged.Strategy = cc.Strategy
		}
		c.Chunkers[family] = merged
	}

	if other.Ingest.SummaryModel != "" {
		c.Ingest.SummaryModel = other.Ingest.SummaryModel
	}
	if other.Ingest.SummaryMaxTokens != 0 {
		c.Ingest.SummaryMaxTokens = other.Ingest.SummaryMaxTokens
	}
}

// applyEnvOverrides applies RAGSMITH_* environment variable overrides,
// the second-highest precedence layer per spec.md §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGSMITH_RETRIEVAL_MODE"); v != "" {
		c.Retrieval.Mode = RetrievalMode(v)
	}
	if v := os.Getenv("RAGSMITH_RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("RAGSMITH_RETRIEVAL_RRF_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.RRFK = n
		}
	}
	if v := os.Getenv("RAGSMITH_RETRIEVAL_HYDE"); v != "" {
		c.Retrieval.HyDE = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RAGSMITH_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("RAGSMITH_GENERATION_MODEL"); v != "" {
		c.Generation.Model = v
	}
}

// Validate checks internal configuration consistency.
func (c *Config) Validate() error {
	switch c.Retrieval.Mode {
	case RetrievalModeHybrid, RetrievalModeDense, RetrievalModeBM25:
	default:
		return fmt.Errorf("retrieval.mode must be hybrid, dense, or bm25, got %q", c.Retrieval.Mode)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Retrieval.TokenBudget <= 0 {
		return fmt.Errorf("retrieval.token_budget must be positive, got %d", c.Retrieval.TokenBudget)
	}
	if c.Generation.MaxSourceSummaries < 0 {
		return fmt.Errorf("generation.max_source_summaries must be non-negative, got %d", c.Generation.MaxSourceSummaries)
	}
	if strings.Contains(c.Project.Brief, "://") {
		return fmt.Errorf("project.brief must be a local file path, got a URL: %q", c.Project.Brief)
	}

	for family, cc := range c.Chunkers {
		if cc.ChunkSize < 0 || cc.Overlap < 0 {
			return fmt.Errorf("chunkers.%s: chunk_size and overlap must be non-negative", family)
		}
		if cc.Overlap >= cc.ChunkSize && cc.ChunkSize > 0 {
			return fmt.Errorf("chunkers.%s: overlap (%d) must be smaller than chunk_size (%d)", family, cc.Overlap, cc.ChunkSize)
		}
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
