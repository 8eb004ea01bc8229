package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// Article is the cleaned text content of a fetched page.
type Article struct {
	URL     string
	Title   string
	Content string
	Excerpt string
	// Published is the timestamp the page metadata declares, zero when
	// the page does not declare one.
	Published time.Time
}

// FetchArticle fetches the URL and extracts the readable article body.
// Pages whose extraction yields no text return ErrMalformed.
func (c *Client) FetchArticle(ctx context.Context, rawURL string) (*Article, error) {
	result, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch article parse url: %w", err)
	}

	extracted, err := readability.FromReader(strings.NewReader(result.Body), parsed)
	if err != nil {
		return nil, fmt.Errorf("fetch article %s: extraction: %w", rawURL, ErrMalformed)
	}

	content := strings.TrimSpace(extracted.TextContent)
	if content == "" {
		return nil, fmt.Errorf("fetch article %s: no text content: %w", rawURL, ErrMalformed)
	}

	meta := extractMetadata(result.Body)

	title := strings.TrimSpace(extracted.Title)
	if title == "" {
		title = meta.Title
	}

	return &Article{
		URL:       rawURL,
		Title:     title,
		Content:   content,
		Excerpt:   strings.TrimSpace(extracted.Excerpt),
		Published: meta.Published,
	}, nil
}
