// Package sitemap walks a site's sitemap tree: it expands sitemap-index
// documents into leaf URL lists, applies per-site URL filters and a date
// window, and falls back to RSS feeds when sitemaps are unavailable.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// dateOnlyFormat is the date-only layout for sitemap lastmod values.
const dateOnlyFormat = "2006-01-02"

// Entry is a single URL extracted from a leaf sitemap.
type Entry struct {
	Loc     string
	LastMod *time.Time
}

// xmlURLSet is the root element of a standard sitemap XML file.
type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

// xmlURL is a single <url> entry inside a <urlset>.
type xmlURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// xmlSitemapIndex is the root element of a sitemap index XML file.
type xmlSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

// xmlSitemap is a single <sitemap> entry inside a <sitemapindex>.
type xmlSitemap struct {
	Loc string `xml:"loc"`
}

// IsIndex reports whether the sitemap body is a sitemap index rather
// than a leaf URL list.
func IsIndex(body string) bool {
	var index xmlSitemapIndex
	return xml.Unmarshal([]byte(body), &index) == nil && len(index.Sitemaps) > 0
}

// ParseIndex parses a sitemap index and returns the child sitemap URLs.
func ParseIndex(body string) ([]string, error) {
	var index xmlSitemapIndex
	if err := xml.Unmarshal([]byte(body), &index); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, s := range index.Sitemaps {
		urls = append(urls, strings.TrimSpace(s.Loc))
	}
	return urls, nil
}

// ParseURLSet parses a leaf sitemap and returns its URL entries.
func ParseURLSet(body string) ([]Entry, error) {
	var urlset xmlURLSet
	if err := xml.Unmarshal([]byte(body), &urlset); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	entries := make([]Entry, 0, len(urlset.URLs))
	for i := range urlset.URLs {
		raw := &urlset.URLs[i]
		entry := Entry{Loc: strings.TrimSpace(raw.Loc)}
		if entry.Loc == "" {
			continue
		}
		if raw.LastMod != "" {
			if t, err := parseLastMod(raw.LastMod); err == nil {
				entry.LastMod = &t
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseLastMod attempts to parse a sitemap lastmod value. It tries
// RFC 3339 first, then falls back to the date-only format.
func parseLastMod(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)

	t, err := time.Parse(time.RFC3339, trimmed)
	if err == nil {
		return t, nil
	}

	t, dateErr := time.Parse(dateOnlyFormat, trimmed)
	if dateErr == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("parse lastmod %q: %w", trimmed, dateErr)
}

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// maybeDecompress transparently decompresses gzipped sitemap bodies.
// Plain bodies pass through unchanged.
func maybeDecompress(url, body string) (string, error) {
	raw := []byte(body)
	if !strings.HasSuffix(url, ".gz") && !bytes.HasPrefix(raw, gzipMagic) {
		return body, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decompress sitemap %s: %w", url, err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decompress sitemap %s: %w", url, err)
	}
	return string(decompressed), nil
}
