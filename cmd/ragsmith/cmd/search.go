package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragsmith/ragsmith/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	var (
		topK int
		mode string
		hyde bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the project's knowledge store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), topK, mode, hyde)
		},
	}

	cmd.Flags().IntVarP(&topK, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVarP(&mode, "mode", "m", "hybrid", "retrieval mode: hybrid, dense, bm25")
	cmd.Flags().BoolVar(&hyde, "hyde", false, "expand the query with a hypothetical-document embedding before searching")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, topK int, mode string, hyde bool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireCredentials(a.cfg.Embedding.Model, a.cfg.Retrieval.HyDEModel); err != nil {
		return err
	}

	retriever := retrieval.New(a.repo, a.gw, retrieval.NewPatternClassifier())
	opts := retrieval.DefaultOptions(a.cfg.Embedding.Model)
	opts.Mode = retrieval.Mode(mode)
	opts.TopK = topK
	opts.HyDEEnabled = hyde
	opts.HyDEModel = a.cfg.Retrieval.HyDEModel

	results, err := retriever.Search(cmd.Context(), query, opts)
	if err != nil {
		return err
	}

	chunks, err := retriever.Hydrate(cmd.Context(), results)
	if err != nil {
		return err
	}

	for i, c := range chunks {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (rrf=%.4f)\n%s\n\n", i+1, c.SourcePath, results[i].RRFScore, c.RawText)
	}
	return nil
}
