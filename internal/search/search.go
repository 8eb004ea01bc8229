// Package search answers natural-language queries against the vector
// index.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/vectorindex"
)

const (
	// DefaultLimit is the result count when the caller does not set one.
	DefaultLimit = 10

	// overFetchFactor widens the kNN request so post-filtering on date
	// and source still fills the requested limit.
	overFetchFactor = 2

	dateLayout = "2006-01-02"
)

// Options narrows a search beyond the query text.
type Options struct {
	// Limit caps the number of results. Zero selects DefaultLimit.
	Limit int
	// MinSimilarity drops results scoring below the threshold.
	MinSimilarity float64
	// Sources restricts results to the named sites. Empty means all.
	Sources []string
	// From and To bound the published date, inclusive. Zero values
	// leave that side open.
	From time.Time
	To   time.Time
}

// Searcher embeds queries and runs filtered kNN searches.
type Searcher struct {
	provider embedding.Provider
	index    vectorindex.Index
	log      logger.Interface
}

// NewSearcher creates a searcher over the given provider and index.
func NewSearcher(
	provider embedding.Provider,
	index vectorindex.Index,
	log logger.Interface,
) *Searcher {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Searcher{
		provider: provider,
		index:    index,
		log:      log.WithComponent("search"),
	}
}

// Search embeds the query and returns the best-matching articles,
// ordered by descending similarity with URL as tiebreak.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]domain.ArticleMatch, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := s.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.index.Query(ctx, vector, limit*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	matches := make([]domain.ArticleMatch, 0, limit)
	for _, hit := range hits {
		if !s.accept(hit, opts) {
			continue
		}

		matches = append(matches, domain.ArticleMatch{
			URL:            hit.URL,
			Title:          hit.Title,
			ContentSnippet: hit.Snippet,
			PublishedDate:  hit.PublishedDate,
			Source:         hit.Source,
			Similarity:     hit.Score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].URL < matches[j].URL
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.log.Debug("search complete",
		"query", query,
		"hits", len(hits),
		"matches", len(matches))

	return matches, nil
}

func (s *Searcher) accept(hit vectorindex.Hit, opts Options) bool {
	if opts.MinSimilarity > 0 && hit.Score < opts.MinSimilarity {
		return false
	}

	if len(opts.Sources) > 0 && !contains(opts.Sources, hit.Source) {
		return false
	}

	if opts.From.IsZero() && opts.To.IsZero() {
		return true
	}

	published, err := time.Parse(dateLayout, hit.PublishedDate)
	if err != nil {
		// a date filter is active and this article's date is unusable
		return false
	}

	if !opts.From.IsZero() && published.Before(opts.From) {
		return false
	}
	if !opts.To.IsZero() && published.After(opts.To) {
		return false
	}

	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
