// Package cmd provides the CLI commands for ragsmith.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragsmith/ragsmith/internal/logging"
)

const cliVersion = "0.1.0"

var debugMode bool

// NewRootCmd creates the root command for the ragsmith CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ragsmith",
		Short:   "Local-first retrieval-augmented generation over a project's own sources",
		Version: cliVersion,
		Long: `ragsmith ingests local files, web pages and VCS history into a
per-project knowledge store, retrieves the chunks relevant to a query with
hybrid BM25 + semantic search, and assembles them into a grounded prompt
for a generation model.`,
	}

	cmd.SetVersionTemplate("ragsmith version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if debugMode {
			logger, _, err := logging.Setup(logging.DebugConfig())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
		}
		return nil
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
