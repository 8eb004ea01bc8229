package sitemap

import (
	"context"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/sources"
)

// walkFeeds parses the site's RSS/Atom fallback feeds, applying the
// same date window as the sitemap path.
func (w *Walker) walkFeeds(ctx context.Context, site *sources.Site, from, to time.Time) ([]domain.DiscoveredURL, error) {
	var discovered []domain.DiscoveredURL
	seen := make(map[string]bool)

	for _, feedURL := range site.RSSFeeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := w.fetcher.Fetch(ctx, feedURL)
		if err != nil {
			w.log.Warn("RSS feed fetch failed", "site", site.Name, "feed", feedURL, "error", err)
			continue
		}

		items, err := parseFeed(result.Body)
		if err != nil {
			w.log.Warn("RSS feed parse failed", "site", site.Name, "feed", feedURL, "error", err)
			continue
		}

		for _, item := range items {
			if seen[item.URL] || !site.AllowsURL(item.URL) {
				continue
			}
			if !withinWindow(item.Published, from, to) {
				continue
			}
			item.Source = site.Name
			seen[item.URL] = true
			discovered = append(discovered, item)
		}
	}

	return discovered, nil
}

// parseFeed parses an RSS or Atom body into discovered URLs. Items
// without a usable link are skipped.
func parseFeed(body string) ([]domain.DiscoveredURL, error) {
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, err
	}

	items := make([]domain.DiscoveredURL, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := entry.Link
		if link == "" {
			continue
		}

		item := domain.DiscoveredURL{URL: link, Title: entry.Title}
		if entry.PublishedParsed != nil {
			item.Published = entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = entry.UpdatedParsed
		}
		items = append(items, item)
	}
	return items, nil
}
