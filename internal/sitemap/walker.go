package sitemap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/fetch"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/sources"
)

// Fetcher is the subset of the fetch client the walker needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// yearTokenPattern extracts a four-digit year from a sub-sitemap URL
// (e.g. "sitemap-2016-01.xml"). Used to skip pre-cutoff archives
// without fetching them.
var yearTokenPattern = regexp.MustCompile(`(\d{4})`)

// Year tokens outside this range are treated as noise, not years.
const (
	minPlausibleYear = 1990
	maxPlausibleYear = 2100
)

// maxIndexDepth bounds nested sitemap indexes so a cyclic or
// pathologically deep index chain cannot recurse forever.
const maxIndexDepth = 5

// Walker expands sitemap trees into discovered URLs. Each Walk call is
// a fresh, finite traversal; incremental behaviour lives in the crawl
// index layered above it.
type Walker struct {
	fetcher Fetcher
	log     logger.Interface
}

// NewWalker creates a sitemap walker.
func NewWalker(fetcher Fetcher, log logger.Interface) *Walker {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Walker{fetcher: fetcher, log: log.WithComponent("sitemap")}
}

// Walk traverses the site's sitemaps and returns the discovered URLs
// whose lastmod falls within [from, to]. Entries without a lastmod are
// kept: recall is favoured over precision at this stage. When every
// sitemap root is blocked or yields nothing, the site's RSS feeds are
// used as a fallback.
func (w *Walker) Walk(ctx context.Context, site *sources.Site, from, to time.Time) ([]domain.DiscoveredURL, error) {
	var discovered []domain.DiscoveredURL
	seen := make(map[string]bool)

	for _, root := range site.SitemapURLs {
		entries, err := w.walkSitemap(ctx, site, root, from, to, 0)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			w.log.Warn("sitemap walk failed", "site", site.Name, "sitemap", root, "error", err)
			continue
		}
		for _, entry := range entries {
			if !seen[entry.URL] {
				seen[entry.URL] = true
				discovered = append(discovered, entry)
			}
		}
	}

	// RSS is shallow; use it only when sitemaps produced nothing so a
	// full-history crawl is never silently truncated to feed depth.
	if len(discovered) == 0 && len(site.RSSFeeds) > 0 {
		w.log.Info("sitemaps yielded no URLs, falling back to RSS", "site", site.Name)
		return w.walkFeeds(ctx, site, from, to)
	}

	return discovered, nil
}

// walkSitemap fetches one sitemap document and recurses into children
// when it is an index.
func (w *Walker) walkSitemap(
	ctx context.Context,
	site *sources.Site,
	url string,
	from, to time.Time,
	depth int,
) ([]domain.DiscoveredURL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", url, err)
	}

	body, err := maybeDecompress(url, result.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, fetch.ErrMalformed)
	}

	if IsIndex(body) {
		if depth >= maxIndexDepth {
			w.log.Warn("sitemap index nested too deep, skipping",
				"site", site.Name, "sitemap", url, "depth", depth)
			return nil, nil
		}
		return w.walkIndex(ctx, site, url, body, from, to, depth)
	}
	return w.collectLeaf(site, url, body, from, to)
}

// walkIndex expands a sitemap index, bounded by the site's fan-out cap
// and the minimum-archive-year filter.
func (w *Walker) walkIndex(
	ctx context.Context,
	site *sources.Site,
	url, body string,
	from, to time.Time,
	depth int,
) ([]domain.DiscoveredURL, error) {
	children, err := ParseIndex(body)
	if err != nil {
		return nil, err
	}

	total := len(children)
	children = filterArchives(children, site.MinArchiveYear)
	if len(children) > site.MaxSubSitemaps {
		children = children[:site.MaxSubSitemaps]
	}

	w.log.Debug("expanding sitemap index",
		"site", site.Name, "sitemap", url, "children", len(children), "total", total)

	var discovered []domain.DiscoveredURL
	for _, child := range children {
		entries, childErr := w.walkSitemap(ctx, site, child, from, to, depth+1)
		if childErr != nil {
			if errors.Is(childErr, context.Canceled) || errors.Is(childErr, context.DeadlineExceeded) {
				return nil, childErr
			}
			w.log.Warn("sub-sitemap failed, skipping",
				"site", site.Name, "sitemap", child, "error", childErr)
			continue
		}
		discovered = append(discovered, entries...)
	}

	return discovered, nil
}

// collectLeaf converts a leaf sitemap's entries into discovered URLs,
// applying the site's URL filters and the date window.
func (w *Walker) collectLeaf(site *sources.Site, url, body string, from, to time.Time) ([]domain.DiscoveredURL, error) {
	entries, err := ParseURLSet(body)
	if err != nil {
		return nil, err
	}

	filtered := 0
	discovered := make([]domain.DiscoveredURL, 0, len(entries))
	for _, entry := range entries {
		if !site.AllowsURL(entry.Loc) {
			filtered++
			continue
		}
		if !withinWindow(entry.LastMod, from, to) {
			continue
		}
		discovered = append(discovered, domain.DiscoveredURL{
			URL:       entry.Loc,
			Source:    site.Name,
			Published: entry.LastMod,
		})
	}

	if filtered > 0 {
		w.log.Debug("filtered URLs by allow/block patterns",
			"site", site.Name, "sitemap", url, "filtered", filtered)
	}

	return discovered, nil
}

// withinWindow reports whether the timestamp falls in [from, to].
// A nil timestamp is always within the window.
func withinWindow(t *time.Time, from, to time.Time) bool {
	if t == nil {
		return true
	}
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// filterArchives drops sub-sitemaps whose URL carries a year token
// older than minYear. Sitemaps without a plausible year token are kept.
func filterArchives(children []string, minYear int) []string {
	if minYear <= 0 {
		return children
	}

	kept := make([]string, 0, len(children))
	for _, child := range children {
		if year, ok := extractYear(child); ok && year < minYear {
			continue
		}
		kept = append(kept, child)
	}
	return kept
}

// extractYear finds the first plausible four-digit year token in a URL.
func extractYear(url string) (int, bool) {
	for _, match := range yearTokenPattern.FindAllString(url, -1) {
		year, err := strconv.Atoi(match)
		if err == nil && year >= minPlausibleYear && year <= maxPlausibleYear {
			return year, true
		}
	}
	return 0, false
}
