// Package domain provides domain models used across the application.
package domain

import "time"

// EmbeddingStatus tracks an article's position in the embedding pipeline.
type EmbeddingStatus string

const (
	// StatusPending means the article is fetched but not yet embedded.
	StatusPending EmbeddingStatus = "pending"
	// StatusEmbedded means the article's vector is in the vector index.
	StatusEmbedded EmbeddingStatus = "embedded"
	// StatusFailed means embedding was attempted and failed.
	StatusFailed EmbeddingStatus = "failed"
)

// DiscoveredURL is a URL produced by the sitemap walker before its body
// has been fetched.
type DiscoveredURL struct {
	URL       string     `json:"url"`
	Source    string     `json:"source"`
	Title     string     `json:"title,omitempty"`
	Published *time.Time `json:"published,omitempty"`
}

// ArticleRecord is the content store's unit: a fetched article plus its
// embedding status. URL is the primary key.
type ArticleRecord struct {
	URL           string          `db:"url" json:"url"`
	Title         string          `db:"title" json:"title"`
	Content       string          `db:"content" json:"content"`
	PublishedDate string          `db:"published_date" json:"published_date"`
	Source        string          `db:"source" json:"source"`
	LastMod       string          `db:"lastmod" json:"lastmod,omitempty"`
	FetchedAt     time.Time       `db:"fetched_at" json:"fetched_at"`
	Status        EmbeddingStatus `db:"embedding_status" json:"embedding_status"`
	EmbeddedAt    *time.Time      `db:"embedded_at" json:"embedded_at,omitempty"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
}

// ArticleMatch is an article returned from semantic search together with
// its similarity score.
type ArticleMatch struct {
	URL            string  `json:"url"`
	Title          string  `json:"title"`
	ContentSnippet string  `json:"content_snippet,omitempty"`
	PublishedDate  string  `json:"published_date"`
	Source         string  `json:"source"`
	Similarity     float64 `json:"similarity"`
}
