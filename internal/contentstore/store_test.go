package contentstore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/contentstore"
	"github.com/dealharvest/dealharvest/internal/domain"
)

func openStore(t *testing.T) *contentstore.Store {
	t.Helper()

	store, err := contentstore.Open(filepath.Join(t.TempDir(), "articles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func article(url string) *domain.ArticleRecord {
	return &domain.ArticleRecord{
		URL:           url,
		Title:         "Acquisition announced",
		Content:       "Acme acquires Beta Therapeutics for $2B.",
		PublishedDate: "2023-06-01",
		Source:        "fierce",
	}
}

func TestUpsertAndGet(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, article("https://example.com/a")))

	got, err := store.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Acquisition announced", got.Title)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.False(t, got.FetchedAt.IsZero())
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := openStore(t)

	_, err := store.Get(context.Background(), "https://example.com/missing")
	require.ErrorIs(t, err, contentstore.ErrNotFound)
}

func TestUpsertResetsStatusToPending(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, article("https://example.com/a")))
	require.NoError(t, store.MarkEmbedded(ctx, "https://example.com/a"))

	// refetching the same URL must queue it for embedding again
	require.NoError(t, store.Upsert(ctx, article("https://example.com/a")))

	got, err := store.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.EmbeddedAt)
}

func TestGetPendingOrdersAndPages(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	records := make([]*domain.ArticleRecord, 0, 5)
	for i := range 5 {
		records = append(records, article(fmt.Sprintf("https://example.com/%d", i)))
	}
	require.NoError(t, store.UpsertBatch(ctx, records))

	first, err := store.GetPending(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, first, 3)

	rest, err := store.GetPending(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)

	assert.NotEqual(t, first[0].URL, rest[0].URL)
}

func TestMarkEmbeddedAndFailed(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, article("https://example.com/a")))
	require.NoError(t, store.Upsert(ctx, article("https://example.com/b")))

	require.NoError(t, store.MarkEmbedded(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/b", "provider timeout"))

	a, err := store.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmbedded, a.Status)
	require.NotNil(t, a.EmbeddedAt)

	b, err := store.Get(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, b.Status)
	require.NotNil(t, b.ErrorMessage)
	assert.Equal(t, "provider timeout", *b.ErrorMessage)

	failed, err := store.FailedArticles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "https://example.com/b", failed[0].URL)
}

func TestMarkEmbeddedUnknownURL(t *testing.T) {
	t.Parallel()

	store := openStore(t)

	err := store.MarkEmbedded(context.Background(), "https://example.com/none")
	require.ErrorIs(t, err, contentstore.ErrNotFound)
}

func TestResetFailed(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, article("https://example.com/a")))
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/a", "boom"))

	reset, err := store.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	got, err := store.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestStatsAndCount(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, article("https://example.com/a")))
	require.NoError(t, store.Upsert(ctx, article("https://example.com/b")))
	require.NoError(t, store.Upsert(ctx, article("https://example.com/c")))
	require.NoError(t, store.MarkEmbedded(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/b", "boom"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusEmbedded])
	assert.Equal(t, 1, stats[domain.StatusFailed])
	assert.Equal(t, 1, stats[domain.StatusPending])

	urls, err := store.EmbeddedURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a"}, urls)
}
