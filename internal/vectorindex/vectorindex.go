// Package vectorindex stores article embeddings and answers
// nearest-neighbour queries over them.
package vectorindex

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Document is an embedded article as stored in the index.
type Document struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Snippet       string    `json:"snippet"`
	PublishedDate string    `json:"published_date"`
	Source        string    `json:"source"`
	Embedding     []float32 `json:"embedding"`
}

// Hit is a document returned from a query together with its cosine
// similarity to the query vector.
type Hit struct {
	Document
	Score float64
}

// Index is the vector store contract. Implementations must treat URL as
// the document identity: upserting an existing URL replaces it.
type Index interface {
	// Upsert writes documents to the index, replacing any existing
	// documents with the same URL.
	Upsert(ctx context.Context, docs []Document) error

	// Query returns up to k documents nearest to vector, ordered by
	// descending similarity.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Delete removes documents by URL. Unknown URLs are ignored.
	Delete(ctx context.Context, urls []string) error

	// URLs returns the identifiers of every document in the index.
	URLs(ctx context.Context) ([]string, error)

	// Count returns the number of documents in the index.
	Count(ctx context.Context) (int, error)
}
