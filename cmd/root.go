// Package cmd implements the dealharvest command-line interface.
package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/crawl"
	"github.com/dealharvest/dealharvest/cmd/dedup"
	"github.com/dealharvest/dealharvest/cmd/embed"
	"github.com/dealharvest/dealharvest/cmd/httpd"
	"github.com/dealharvest/dealharvest/cmd/schedule"
	"github.com/dealharvest/dealharvest/cmd/search"
	"github.com/dealharvest/dealharvest/cmd/stats"
)

var rootCmd = &cobra.Command{
	Use:   "dealharvest",
	Short: "Crawl, index, and search biopharma deal coverage",
	Long: `dealharvest discovers news articles from configured sites,
stores and embeds them, and answers semantic queries over the corpus.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. The context cancels on interrupt so
// long-running commands shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./config.yaml)")

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(embed.Command())
	rootCmd.AddCommand(search.Command())
	rootCmd.AddCommand(dedup.Command())
	rootCmd.AddCommand(stats.Command())
	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(schedule.Command())
}
