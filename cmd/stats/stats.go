// Package stats implements the stats command, which reports content
// store and crawl index counts.
package stats

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
	"github.com/dealharvest/dealharvest/internal/domain"
)

// Command returns the stats command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show content store and crawl index counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			store, err := deps.Store()
			if err != nil {
				return err
			}

			byStatus, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}

			index, err := deps.CrawlIndex()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Metric", "Count"})
			t.AppendRows([]table.Row{
				{"articles stored", total},
				{"articles pending", byStatus[domain.StatusPending]},
				{"articles embedded", byStatus[domain.StatusEmbedded]},
				{"articles failed", byStatus[domain.StatusFailed]},
				{"known URLs", index.Len()},
			})
			t.Render()

			return nil
		},
	}
}
