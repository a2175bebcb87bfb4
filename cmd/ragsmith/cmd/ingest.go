package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragsmith/ragsmith/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		autoConfirm bool
		reingest    bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <path-or-url>",
		Short: "Ingest a local file, web page, or repository into the project's store",
		Long: `Ingest chunks, embeds and summarizes a source, adding it to the
project's knowledge store. Re-running ingest on a path whose content is
unchanged is a no-op. Use --reingest to force replacement even when the
content looks unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], autoConfirm, reingest)
		},
	}

	cmd.Flags().BoolVarP(&autoConfirm, "yes", "y", false, "proceed without confirming estimated LLM cost")
	cmd.Flags().BoolVar(&reingest, "reingest", false, "purge and re-ingest even if content is unchanged")

	return cmd
}

func runIngest(cmd *cobra.Command, path string, autoConfirm, reingest bool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireCredentials(a.cfg.Embedding.Model, a.cfg.Embedding.ContextModel, a.cfg.Ingest.SummaryModel); err != nil {
		return err
	}

	orch := ingest.New(a.repo, a.gw, a.chunkers, a.cfg)

	var content []byte
	if isLocalSource(path) {
		content, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
	}

	opts := ingest.Options{AutoConfirmCost: autoConfirm, ProjectRoot: root}

	var result *ingest.Result
	if reingest {
		result, err = orch.Reingest(cmd.Context(), path, content, opts)
	} else {
		result, err = orch.Ingest(cmd.Context(), path, content, opts)
	}
	if err != nil {
		return err
	}

	if result.Preview != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "estimated %d chunks, %d LLM calls using %q\n",
			result.Preview.EstimatedChunks, result.Preview.EstimatedLLMCalls, result.Preview.ContextModel)
		if result.Preview.Warning != "" {
			fmt.Fprintln(cmd.OutOrStdout(), result.Preview.Warning)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "re-run with --yes to proceed")
		return nil
	}

	if result.AlreadyPresent {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already present, %d chunks, no changes\n", path, result.ChunkCount)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ingested %s: %d chunks\n", path, result.ChunkCount)
	return nil
}

func isLocalSource(path string) bool {
	for _, prefix := range []string{"http://", "https://", "ssh://", "git://"} {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return false
		}
	}
	return true
}
