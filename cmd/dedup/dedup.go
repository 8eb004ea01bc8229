// Package dedup implements the dedup command, which merges duplicate
// deal records and collapses near-duplicate articles.
package dedup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealharvest/dealharvest/cmd/common"
	"github.com/dealharvest/dealharvest/internal/dealdup"
	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/neardup"
)

// embeddedPageSize is how many embedded articles load per page when
// collapsing near-duplicates.
const embeddedPageSize = 500

// Command returns the dedup command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Merge duplicate deals and collapse near-duplicate articles",
	}

	cmd.AddCommand(newDealsCmd(), newArticlesCmd())

	return cmd
}

// newDealsCmd creates the deals subcommand. It reads a JSON array of
// deal records, merges duplicates, and writes the survivors back out.
func newDealsCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
		windowDays int
	)

	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Merge duplicate deal records",
		Long: `Deals reads a JSON array of extracted deal records, merges exact and
fuzzy duplicates, and writes the surviving records as JSON.

Records merge when their acquirer, target, asset, and announcement date
agree exactly, or when the entities agree and the dates fall within the
fuzzy window. Press-release sources win ties; URLs of merged-away
records survive as related URLs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.FromCommand(cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			records, err := readRecords(inputPath)
			if err != nil {
				return err
			}

			if windowDays <= 0 {
				windowDays = deps.Cfg.Dedup.DealWindowDays
			}

			deduper := dealdup.New(dealdup.Config{WindowDays: windowDays}, deps.Log)
			merged := deduper.Deduplicate(records)

			deps.Log.Info("deduplicated deal records",
				"input", len(records), "output", len(merged))

			return writeRecords(outputPath, merged)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input JSON file (default stdin)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file (default stdout)")
	cmd.Flags().IntVar(&windowDays, "window-days", 0, "Fuzzy date window in days (default from config)")

	return cmd
}

// newArticlesCmd creates the articles subcommand, which reports
// near-duplicate groups among embedded articles.
func newArticlesCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Collapse near-duplicate embedded articles",
		Long: `Articles embeds a title-plus-lead signature of every embedded article
and groups those whose signatures exceed the similarity threshold. The
longest article of each group is kept; the rest are reported with the
URL that replaces them.`,
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

			provider, err := deps.EmbeddingProvider()
			if err != nil {
				return err
			}

			var articles []*domain.ArticleRecord
			for offset := 0; ; offset += embeddedPageSize {
				page, err := store.EmbeddedArticles(cmd.Context(), embeddedPageSize, offset)
				if err != nil {
					return err
				}
				articles = append(articles, page...)
				if len(page) < embeddedPageSize {
					break
				}
			}

			if threshold <= 0 {
				threshold = deps.Cfg.Dedup.NearDupThreshold
			}

			collapser := neardup.NewCollapser(provider, threshold, deps.Log)
			result, err := collapser.Collapse(cmd.Context(), articles)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "%d articles, %d duplicate groups, %d removed\n",
				len(articles), result.Groups, len(result.Removed))
			for loser, winner := range result.Removed {
				fmt.Fprintf(os.Stdout, "  %s -> %s\n", loser, winner)
			}

			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0,
		"Similarity threshold for grouping (default from config)")

	return cmd
}

func readRecords(path string) ([]*domain.DealRecord, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var records []*domain.DealRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode deal records: %w", err)
	}

	return records, nil
}

func writeRecords(path string, records []*domain.DealRecord) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode deal records: %w", err)
	}

	return nil
}
