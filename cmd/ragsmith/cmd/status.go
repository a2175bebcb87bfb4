package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project's knowledge store statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "run a full consistency check across the store")

	return cmd
}

func runStatus(cmd *cobra.Command, check bool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.repo.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sources: %d\nchunks: %d\nschema version: %d\n",
		stats.SourceCount, stats.ChunkCount, stats.SchemaVersion)
	for _, idx := range stats.VectorIndices {
		fmt.Fprintf(cmd.OutOrStdout(), "vector index %q: %d vectors, dim %d\n", idx.Slug, idx.ChunkCount, idx.Dimensions)
	}

	if !check {
		return nil
	}

	report, err := a.repo.ConsistencyCheck(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "consistency check: %d chunks checked in %s, %d issues\n",
		report.ChunksChecked, report.Duration, len(report.Issues))
	for _, issue := range report.Issues {
		fmt.Fprintf(cmd.OutOrStdout(), "  - [%s] chunk %s: %s\n", issue.Type, issue.ChunkID, issue.Details)
	}
	return nil
}
