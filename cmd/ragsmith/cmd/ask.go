package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragsmith/ragsmith/internal/assembler"
	"github.com/ragsmith/ragsmith/internal/generate"
	"github.com/ragsmith/ragsmith/internal/retrieval"
)

func newAskCmd() *cobra.Command {
	var (
		out         string
		autoConfirm bool
		featureSpec string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Retrieve, assemble and generate a grounded answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), out, autoConfirm, featureSpec)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the answer to this path instead of stdout")
	cmd.Flags().BoolVarP(&autoConfirm, "yes", "y", false, "overwrite --out without confirmation")
	cmd.Flags().StringVar(&featureSpec, "feature-spec", "", "additional feature-spec text to include in the prompt")

	return cmd
}

func runAsk(cmd *cobra.Command, query, out string, autoConfirm bool, featureSpec string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireCredentials(a.cfg.Embedding.Model, a.cfg.Retrieval.HyDEModel,
		a.cfg.Retrieval.ScorerModel, a.cfg.Generation.Model); err != nil {
		return err
	}

	retriever := retrieval.New(a.repo, a.gw, retrieval.NewPatternClassifier())
	opts := retrieval.DefaultOptions(a.cfg.Embedding.Model)
	opts.HyDEModel = a.cfg.Retrieval.HyDEModel
	opts.HyDEEnabled = a.cfg.Retrieval.HyDE

	results, err := retriever.Search(cmd.Context(), query, opts)
	if err != nil {
		return err
	}
	chunks, err := retriever.Hydrate(cmd.Context(), results)
	if err != nil {
		return err
	}

	candidates := make([]assembler.Candidate, len(chunks))
	for i, c := range chunks {
		candidates[i] = assembler.Candidate{Chunk: c, FusionScore: results[i].RRFScore}
	}

	asm := assembler.New(a.repo, a.gw)
	briefPath := a.cfg.Project.Brief
	if briefPath != "" && !filepath.IsAbs(briefPath) {
		briefPath = filepath.Join(root, briefPath)
	}
	assembled, err := asm.Assemble(cmd.Context(), query, candidates, assembler.Config{
		ScorerModel:        a.cfg.Retrieval.ScorerModel,
		GenerationModel:    a.cfg.Generation.Model,
		RelevanceThreshold: a.cfg.Retrieval.RelevanceThreshold,
		TokenBudget:        a.cfg.Retrieval.TokenBudget,
		MaxSourceSummaries: a.cfg.Generation.MaxSourceSummaries,
		ProjectBriefPath:   briefPath,
		BriefMaxTokens:     a.cfg.Project.BriefMaxTokens,
		FeatureSpec:        featureSpec,
	})
	if err != nil {
		return err
	}
	for _, w := range assembled.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}

	driver := generate.New(a.gw)
	result, err := driver.Generate(cmd.Context(), assembled.Prompt, assembled.PackedChunks, generate.Options{
		Model:     a.cfg.Generation.Model,
		MaxTokens: 4096,
	})
	if err != nil {
		return err
	}

	if out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		return nil
	}

	if err := generate.WriteAtomic(out, root, result.Text, autoConfirm); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote answer to %s\n", out)
	return nil
}
