package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetadataOpenGraph(t *testing.T) {
	t.Parallel()

	body := `<html><head>
		<meta property="og:title" content="Acme buys Beta for $2B">
		<meta property="article:published_time" content="2026-03-15T09:30:00Z">
	</head><body><p>story</p></body></html>`

	meta := extractMetadata(body)
	assert.Equal(t, "Acme buys Beta for $2B", meta.Title)
	assert.Equal(t, time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC), meta.Published)
}

func TestExtractMetadataDateOnly(t *testing.T) {
	t.Parallel()

	body := `<html><head>
		<meta name="date" content="2026-03-15">
	</head><body></body></html>`

	meta := extractMetadata(body)
	assert.Equal(t, 2026, meta.Published.Year())
	assert.Equal(t, time.March, meta.Published.Month())
}

func TestExtractMetadataTimeElementFallback(t *testing.T) {
	t.Parallel()

	body := `<html><body>
		<time datetime="2026-03-15T09:30:00Z">March 15, 2026</time>
	</body></html>`

	meta := extractMetadata(body)
	assert.False(t, meta.Published.IsZero())
}

func TestExtractMetadataMissing(t *testing.T) {
	t.Parallel()

	meta := extractMetadata(`<html><body><p>nothing declared</p></body></html>`)
	assert.Empty(t, meta.Title)
	assert.True(t, meta.Published.IsZero())
}

func TestParsePublishedRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parsePublished("last tuesday")
	assert.Error(t, err)
}
