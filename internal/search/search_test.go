package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/search"
	"github.com/dealharvest/dealharvest/internal/vectorindex"
)

// queryProvider embeds every query as a fixed unit vector so similarity
// is controlled entirely by the seeded document vectors.
type queryProvider struct{}

func (queryProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (queryProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (queryProvider) ModelName() string { return "fake-embed-v1" }

func seedIndex(t *testing.T) *vectorindex.MemoryIndex {
	t.Helper()

	idx := vectorindex.NewMemoryIndex()
	docs := []vectorindex.Document{
		{URL: "https://a.com/1", Title: "Acme buys Beta", PublishedDate: "2023-06-01",
			Source: "fierce", Embedding: []float32{1, 0}},
		{URL: "https://b.com/2", Title: "Gamma licensing pact", PublishedDate: "2023-07-15",
			Source: "endpoints", Embedding: []float32{0.9, 0.44}},
		{URL: "https://c.com/3", Title: "Unrelated op-ed", PublishedDate: "2022-01-01",
			Source: "fierce", Embedding: []float32{0, 1}},
	}
	require.NoError(t, idx.Upsert(context.Background(), docs))

	return idx
}

func dt(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	searcher := search.NewSearcher(queryProvider{}, seedIndex(t), nil)

	matches, err := searcher.Search(context.Background(), "biotech acquisitions", search.Options{})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "https://a.com/1", matches[0].URL)
	assert.Equal(t, "https://b.com/2", matches[1].URL)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestSearchMinSimilarityFilter(t *testing.T) {
	t.Parallel()

	searcher := search.NewSearcher(queryProvider{}, seedIndex(t), nil)

	matches, err := searcher.Search(context.Background(), "deals", search.Options{
		MinSimilarity: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Similarity, 0.5)
	}
}

func TestSearchSourceFilter(t *testing.T) {
	t.Parallel()

	searcher := search.NewSearcher(queryProvider{}, seedIndex(t), nil)

	matches, err := searcher.Search(context.Background(), "deals", search.Options{
		Sources: []string{"endpoints"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "https://b.com/2", matches[0].URL)
}

func TestSearchDateWindowFilter(t *testing.T) {
	t.Parallel()

	searcher := search.NewSearcher(queryProvider{}, seedIndex(t), nil)

	matches, err := searcher.Search(context.Background(), "deals", search.Options{
		From: dt("2023-01-01"),
		To:   dt("2023-06-30"),
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "https://a.com/1", matches[0].URL)
}

func TestSearchDropsUndatedWhenDateFilterActive(t *testing.T) {
	t.Parallel()

	idx := vectorindex.NewMemoryIndex()
	require.NoError(t, idx.Upsert(context.Background(), []vectorindex.Document{
		{URL: "https://a.com/undated", Source: "fierce", Embedding: []float32{1, 0}},
	}))
	searcher := search.NewSearcher(queryProvider{}, idx, nil)

	matches, err := searcher.Search(context.Background(), "deals", search.Options{
		From: dt("2023-01-01"),
	})
	require.NoError(t, err)
	assert.Empty(t, matches)

	// without a window the undated article comes back
	matches, err = searcher.Search(context.Background(), "deals", search.Options{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSearchHonorsLimit(t *testing.T) {
	t.Parallel()

	searcher := search.NewSearcher(queryProvider{}, seedIndex(t), nil)

	matches, err := searcher.Search(context.Background(), "deals", search.Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "https://a.com/1", matches[0].URL)
}
