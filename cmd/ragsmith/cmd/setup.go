package cmd

import (
	"os"
	"path/filepath"

	"github.com/ragsmith/ragsmith/internal/chunk"
	"github.com/ragsmith/ragsmith/internal/config"
	"github.com/ragsmith/ragsmith/internal/gateway"
	"github.com/ragsmith/ragsmith/internal/store"
)

const dataDirName = ".ragsmith"

// app bundles one invocation's wired collaborators.
type app struct {
	cfg      *config.Config
	repo     *store.Repository
	gw       *gateway.Gateway
	chunkers *chunk.Registry
	root     string
}

func newApp(root string) (*app, error) {
	cfg, err := config.Load(root, config.FlagOverrides{})
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(root, dataDirName)
	repo, err := store.Open(dataDir)
	if err != nil {
		return nil, err
	}

	gw := gateway.New()

	contextModel := cfg.Embedding.ContextModel
	counter := chunk.TokenCounter(func(text string) int {
		n, err := gw.CountTokens(contextModel, text)
		if err != nil {
			return len(text) / 4
		}
		return n
	})
	chunkers := chunk.NewRegistry(chunkConfigFrom(cfg), counter, nil, cfg.Embedding.Model)

	return &app{cfg: cfg, repo: repo, gw: gw, chunkers: chunkers, root: root}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

// requireCredentials validates, for each non-empty model a command is about
// to call the Gateway with, that its provider's credential is present, so a
// missing key surfaces as one clear error before any chunking, embedding or
// retrieval work runs rather than mid-pipeline.
func (a *app) requireCredentials(models ...string) error {
	seen := make(map[string]bool, len(models))
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		if err := a.gw.ValidateCredentials(model); err != nil {
			return err
		}
	}
	return nil
}

// chunkConfigFrom translates the project's per-family token budgets into
// chunk.Config, converting each family's token overlap into the fraction
// the chunkers expect.
func chunkConfigFrom(cfg *config.Config) chunk.Config {
	out := chunk.DefaultConfig()

	apply := func(name string, tokens *int, overlap *float64) {
		fc, ok := cfg.Chunkers[name]
		if !ok || fc.ChunkSize <= 0 {
			return
		}
		*tokens = fc.ChunkSize
		if fc.ChunkSize > 0 {
			*overlap = float64(fc.Overlap) / float64(fc.ChunkSize)
		}
	}

	apply("markdown", &out.MarkdownMaxTokens, &out.MarkdownOverlap)
	apply("pdf", &out.PDFMaxTokens, &out.PDFOverlap)
	apply("epub", &out.EPUBMaxTokens, &out.EPUBOverlap)
	apply("text", &out.TextMaxTokens, &out.TextOverlap)
	apply("json", &out.JSONMaxTokens, &out.JSONOverlap)
	apply("vcs_history", &out.VCSMaxTokens, &out.VCSOverlap)
	apply("web", &out.WebMaxTokens, &out.WebOverlap)
	apply("audio", &out.AudioMaxTokens, &out.AudioOverlap)

	out.VCSToken = os.Getenv("RAGSMITH_VCS_TOKEN")
	return out
}

// projectRoot resolves the working directory a bare invocation runs
// against: the directory holding .ragsmith.yaml, walking up from cwd, or
// cwd itself if none is found.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".ragsmith.yaml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}
