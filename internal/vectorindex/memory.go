package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an exact-scan cosine index. It backs the near-duplicate
// collapser, which works over a single run's worth of vectors, and
// stands in for Elasticsearch in tests.
type MemoryIndex struct {
	mu   sync.RWMutex
	dims int
	docs map[string]Document
}

// NewMemoryIndex creates an empty in-memory index. The dimension is
// fixed by the first upserted document.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

// Upsert stores documents keyed by URL.
func (m *MemoryIndex) Upsert(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		if m.dims == 0 {
			m.dims = len(doc.Embedding)
		}
		if len(doc.Embedding) != m.dims {
			return fmt.Errorf("%w: got %d, index has %d",
				ErrDimensionMismatch, len(doc.Embedding), m.dims)
		}
		m.docs[doc.URL] = doc
	}

	return nil
}

// Query scans every document and returns the k nearest by cosine
// similarity. Ties break on URL so results are deterministic.
func (m *MemoryIndex) Query(_ context.Context, vector []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.docs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != m.dims {
		return nil, fmt.Errorf("%w: got %d, index has %d",
			ErrDimensionMismatch, len(vector), m.dims)
	}

	hits := make([]Hit, 0, len(m.docs))
	for _, doc := range m.docs {
		hits = append(hits, Hit{
			Document: doc,
			Score:    CosineSimilarity(vector, doc.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].URL < hits[j].URL
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	return hits, nil
}

// Delete removes documents by URL.
func (m *MemoryIndex) Delete(_ context.Context, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, url := range urls {
		delete(m.docs, url)
	}

	return nil
}

// URLs returns all document identifiers in sorted order.
func (m *MemoryIndex) URLs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	urls := make([]string, 0, len(m.docs))
	for url := range m.docs {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	return urls, nil
}

// Count returns the number of stored documents.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.docs), nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero vector yields similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
