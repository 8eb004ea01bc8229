package fetch

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// publishedLayouts are the timestamp formats seen in article metadata.
var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// pageMetadata is what the HTML head declares about an article.
type pageMetadata struct {
	Title     string
	Published time.Time
}

// extractMetadata pulls the title and published timestamp out of the
// page head. News sites declare these via Open Graph and article meta
// tags far more reliably than in the body markup.
func extractMetadata(body string) pageMetadata {
	var meta pageMetadata

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return meta
	}

	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		meta.Title = strings.TrimSpace(title)
	}

	for _, selector := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	} {
		raw, ok := doc.Find(selector).Attr("content")
		if !ok {
			continue
		}
		if ts, parseErr := parsePublished(raw); parseErr == nil {
			meta.Published = ts
			break
		}
	}

	if meta.Published.IsZero() {
		if raw, ok := doc.Find("time[datetime]").Attr("datetime"); ok {
			if ts, parseErr := parsePublished(raw); parseErr == nil {
				meta.Published = ts
			}
		}
	}

	return meta
}

func parsePublished(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	var lastErr error
	for _, layout := range publishedLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}

	return time.Time{}, lastErr
}
