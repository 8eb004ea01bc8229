// Package search implements the search command for semantic queries
// over the article index.
package search

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
	"github.com/dealharvest/dealharvest/internal/domain"
	searchpkg "github.com/dealharvest/dealharvest/internal/search"
)

const (
	dateLayout = "2006-01-02"

	// snippetPreviewLength caps the snippet column in the results table.
	snippetPreviewLength = 100
)

// Command returns the search command for use in the root command.
func Command() *cobra.Command {
	var (
		limit   int
		minSim  float64
		sources []string
		fromStr string
		toStr   string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed articles",
		Long: `Search embeds the query and returns the most similar articles from
the vector index.

Examples:
  # Find oncology licensing coverage
  dealharvest search "oncology licensing deal with upfront payment"

  # Restrict to one site and the last month
  dealharvest search "ADC acquisition" --source fiercebiotech --from 2026-07-28`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(limit, minSim, sources, fromStr, toStr)
			if err != nil {
				return err
			}

			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			searcher, err := deps.Searcher(cmd.Context())
			if err != nil {
				return err
			}

			matches, err := searcher.Search(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			renderMatches(args[0], matches)

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().Float64Var(&minSim, "min-similarity", 0, "Drop results below this cosine similarity")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Restrict results to these sites (repeatable)")
	cmd.Flags().StringVar(&fromStr, "from", "", "Earliest published date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "Latest published date (YYYY-MM-DD)")

	return cmd
}

func buildOptions(
	limit int,
	minSim float64,
	sources []string,
	fromStr, toStr string,
) (searchpkg.Options, error) {
	opts := searchpkg.Options{
		Limit:         limit,
		MinSimilarity: minSim,
		Sources:       sources,
	}

	if fromStr != "" {
		from, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return opts, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
		opts.From = from
	}

	if toStr != "" {
		to, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return opts, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
		opts.To = to
	}

	return opts, nil
}

func renderMatches(query string, matches []domain.ArticleMatch) {
	if len(matches) == 0 {
		fmt.Fprintf(os.Stdout, "no results for %q\n", query)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.Style().Options.SeparateRows = true
	t.AppendHeader(table.Row{"#", "Score", "Date", "Source", "Title", "URL"})

	for i, m := range matches {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.3f", m.Similarity),
			m.PublishedDate,
			m.Source,
			preview(m.Title),
			m.URL,
		})
	}

	t.AppendFooter(table.Row{"Total", len(matches), "", "", fmt.Sprintf("Query: %s", query), ""})
	t.Render()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= snippetPreviewLength {
		return s
	}

	return s[:snippetPreviewLength] + "..."
}
