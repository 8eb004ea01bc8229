// Package crawl implements the crawl command, which discovers and
// ingests new articles from the configured sites.
package crawl

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
	"github.com/dealharvest/dealharvest/internal/pipeline"
)

const dateLayout = "2006-01-02"

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var (
		fromStr  string
		toStr    string
		lookback int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Discover and ingest new articles",
		Long: `Crawl walks the sitemaps and RSS feeds of every configured site,
fetches articles that are not yet in the crawl index, stores them, and
embeds them into the vector index.

The published-date window defaults to the last 7 days. Use --from/--to
for an explicit window, or --lookback to widen the default one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := resolveWindow(fromStr, toStr, lookback)
			if err != nil {
				return err
			}

			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			p, err := deps.Pipeline(cmd.Context(), window)
			if err != nil {
				return fmt.Errorf("failed to construct pipeline: %w", err)
			}

			summary, runErr := p.Run(cmd.Context())
			if summary != nil {
				renderSummary(summary)
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "Start of the published-date window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "End of the published-date window (YYYY-MM-DD)")
	cmd.Flags().IntVar(&lookback, "lookback", 0,
		"Crawl articles published in the last N days (ignored when --from is set)")

	return cmd
}

func resolveWindow(fromStr, toStr string, lookback int) (pipeline.Config, error) {
	var cfg pipeline.Config

	if fromStr != "" {
		from, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
		cfg.From = from
	} else if lookback > 0 {
		cfg.From = time.Now().AddDate(0, 0, -lookback)
	}

	if toStr != "" {
		to, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return cfg, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
		cfg.To = to
	}

	if !cfg.From.IsZero() && !cfg.To.IsZero() && cfg.To.Before(cfg.From) {
		return cfg, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}

	return cfg, nil
}

func renderSummary(summary *pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Site", "Discovered", "New", "Stored", "Error"})

	names := make([]string, 0, len(summary.Sites))
	for name := range summary.Sites {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		site := summary.Sites[name]
		t.AppendRow(table.Row{name, site.Discovered, site.New, site.Stored, site.Error})
	}

	t.AppendFooter(table.Row{"Total", summary.Discovered, summary.NewURLs, summary.Stored, ""})
	t.Render()

	fmt.Fprintf(os.Stdout, "Embedded %d articles (%d failed) in %s\n",
		summary.Embedded, summary.EmbedFailed,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))

	for reason, n := range summary.Drops {
		fmt.Fprintf(os.Stdout, "  dropped %d: %s\n", n, reason)
	}
}
