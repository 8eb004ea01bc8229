// Package embed implements the embed command, which moves stored
// articles into the vector index.
package embed

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
)

// Command returns the embed command for use in the root command.
func Command() *cobra.Command {
	var maxItems int

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed pending articles into the vector index",
		Long: `Embed processes every stored article that is still waiting for an
embedding, batching them through the embedding provider and indexing the
resulting vectors. Use --max to cap how many articles one invocation
processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			indexer, err := deps.Indexer(cmd.Context())
			if err != nil {
				return err
			}

			result, runErr := indexer.ProcessPending(cmd.Context(), maxItems)
			if result != nil {
				fmt.Fprintf(os.Stdout, "processed %d articles: %d embedded, %d failed\n",
					result.Processed, result.Embedded, result.Failed)
			}

			return runErr
		},
	}

	cmd.Flags().IntVar(&maxItems, "max", 0,
		"maximum articles to process this invocation (0 = no limit)")

	cmd.AddCommand(newRetryCmd(), newVerifyCmd())

	return cmd
}

// newRetryCmd creates the retry subcommand.
func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Re-run embedding for previously failed articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			indexer, err := deps.Indexer(cmd.Context())
			if err != nil {
				return err
			}

			result, runErr := indexer.RetryFailed(cmd.Context())
			if result != nil {
				fmt.Fprintf(os.Stdout, "retried %d articles: %d embedded, %d failed\n",
					result.Processed, result.Embedded, result.Failed)
			}

			return runErr
		},
	}
}

// newVerifyCmd creates the verify subcommand.
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the content store and vector index agree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			indexer, err := deps.Indexer(cmd.Context())
			if err != nil {
				return err
			}

			report, err := indexer.VerifySync(cmd.Context())
			if err != nil {
				return err
			}

			if report.InSync() {
				fmt.Fprintln(os.Stdout, "store and index are in sync")
				return nil
			}

			for _, url := range report.MissingFromIndex {
				fmt.Fprintf(os.Stdout, "missing from index: %s\n", url)
			}
			for _, url := range report.Orphaned {
				fmt.Fprintf(os.Stdout, "orphaned in index: %s\n", url)
			}

			return fmt.Errorf("store and index diverge: %d missing, %d orphaned",
				len(report.MissingFromIndex), len(report.Orphaned))
		},
	}
}
