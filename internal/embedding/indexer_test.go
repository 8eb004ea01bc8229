package embedding_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/contentstore"
	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/vectorindex"
)

// fakeProvider returns a fixed-dimension vector per text, failing for
// texts containing "poison".
type fakeProvider struct {
	calls int
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "poison") {
			return nil, errors.New("provider rejected text")
		}
		out[i] = []float32{float32(len(text)), 1, 0}
	}

	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeProvider) ModelName() string { return "fake-embed-v1" }

func newStore(t *testing.T) *contentstore.Store {
	t.Helper()

	store, err := contentstore.Open(filepath.Join(t.TempDir(), "articles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func seedArticles(t *testing.T, store *contentstore.Store, contents ...string) {
	t.Helper()

	records := make([]*domain.ArticleRecord, 0, len(contents))
	for i, content := range contents {
		records = append(records, &domain.ArticleRecord{
			URL:           fmt.Sprintf("https://example.com/%d", i),
			Title:         fmt.Sprintf("Article %d", i),
			Content:       content,
			PublishedDate: "2023-06-01",
			Source:        "fierce",
		})
	}
	require.NoError(t, store.UpsertBatch(context.Background(), records))
}

func TestProcessPendingEmbedsAll(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	index := vectorindex.NewMemoryIndex()
	seedArticles(t, store, "alpha deal", "beta deal", "gamma deal")

	indexer := embedding.NewIndexer(store, index, &fakeProvider{}, 2, nil)

	result, err := indexer.ProcessPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Embedded)
	assert.Zero(t, result.Failed)

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats[domain.StatusEmbedded])
}

func TestProcessPendingDegradesToPerArticle(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	index := vectorindex.NewMemoryIndex()
	seedArticles(t, store, "good deal", "poison pill", "another good deal")

	indexer := embedding.NewIndexer(store, index, &fakeProvider{}, 3, nil)

	result, err := indexer.ProcessPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Embedded)
	assert.Equal(t, 1, result.Failed)

	failed, err := store.FailedArticles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Content, "poison")
}

func TestProcessPendingHonorsMaxItems(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	index := vectorindex.NewMemoryIndex()
	seedArticles(t, store, "one", "two", "three", "four", "five")

	indexer := embedding.NewIndexer(store, index, &fakeProvider{}, 2, nil)

	result, err := indexer.ProcessPending(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Embedded)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats[domain.StatusPending])

	// a second uncapped pass drains the rest
	result, err = indexer.ProcessPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Embedded)
}

func TestProcessPendingNoPendingIsNoOp(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	provider := &fakeProvider{}
	indexer := embedding.NewIndexer(store, vectorindex.NewMemoryIndex(), provider, 0, nil)

	result, err := indexer.ProcessPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Zero(t, provider.calls)
}

func TestRetryFailed(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	index := vectorindex.NewMemoryIndex()
	seedArticles(t, store, "good deal")
	require.NoError(t, store.MarkFailed(context.Background(), "https://example.com/0", "boom"))

	indexer := embedding.NewIndexer(store, index, &fakeProvider{}, 2, nil)

	result, err := indexer.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Embedded)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats[domain.StatusFailed])
}

func TestVerifySync(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	index := vectorindex.NewMemoryIndex()
	ctx := context.Background()

	seedArticles(t, store, "one", "two")
	indexer := embedding.NewIndexer(store, index, &fakeProvider{}, 2, nil)

	_, err := indexer.ProcessPending(ctx, 0)
	require.NoError(t, err)

	report, err := indexer.VerifySync(ctx)
	require.NoError(t, err)
	assert.True(t, report.InSync())

	// drop one vector and plant an orphan
	require.NoError(t, index.Delete(ctx, []string{"https://example.com/0"}))
	require.NoError(t, index.Upsert(ctx, []vectorindex.Document{
		{URL: "https://example.com/ghost", Embedding: []float32{1, 0, 0}},
	}))

	report, err = indexer.VerifySync(ctx)
	require.NoError(t, err)
	assert.False(t, report.InSync())
	assert.Equal(t, []string{"https://example.com/0"}, report.MissingFromIndex)
	assert.Equal(t, []string{"https://example.com/ghost"}, report.Orphaned)
}
