package crawlindex_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/crawlindex"
)

func indexPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "crawl_index.json")
}

func TestLoadMissingFileReturnsEmptyIndex(t *testing.T) {
	t.Parallel()

	idx, err := crawlindex.Load(indexPath(t), nil)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
}

func TestMarkKnownAndIsKnown(t *testing.T) {
	t.Parallel()

	idx, err := crawlindex.Load(indexPath(t), nil)
	require.NoError(t, err)

	assert.True(t, idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{}))
	assert.False(t, idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{}))
	assert.True(t, idx.IsKnown("fierce", "https://example.com/a"))

	// same URL under a different site is a separate entry
	assert.False(t, idx.IsKnown("endpoints", "https://example.com/a"))
}

func TestMarkKnownRecordsMetadata(t *testing.T) {
	t.Parallel()

	idx, err := crawlindex.Load(indexPath(t), nil)
	require.NoError(t, err)

	before := time.Now().UTC()
	idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{Published: "2026-08-20"})

	entry, ok := idx.Get("fierce", "https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, "2026-08-20", entry.Published)
	assert.False(t, entry.CrawledAt.Before(before))

	// remarking an existing URL keeps the original metadata
	idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{Published: "2026-08-21"})
	entry, ok = idx.Get("fierce", "https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, "2026-08-20", entry.Published)
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := indexPath(t)

	crawledAt := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	idx, err := crawlindex.Load(path, nil)
	require.NoError(t, err)
	idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{Published: "2026-08-24", CrawledAt: crawledAt})
	idx.MarkKnown("fierce", "https://example.com/b", crawlindex.Entry{})
	idx.MarkKnown("endpoints", "https://example.com/c", crawlindex.Entry{})
	require.NoError(t, idx.Save())
	assert.False(t, idx.Dirty())

	reloaded, err := crawlindex.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
	assert.True(t, reloaded.IsKnown("fierce", "https://example.com/b"))
	assert.Equal(t, map[string]int{"fierce": 2, "endpoints": 1}, reloaded.Stats())

	entry, ok := reloaded.Get("fierce", "https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, "2026-08-24", entry.Published)
	assert.True(t, entry.CrawledAt.Equal(crawledAt))
}

func TestLoadCorruptSnapshotStartsEmpty(t *testing.T) {
	t.Parallel()

	path := indexPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	idx, err := crawlindex.Load(path, nil)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
}

func TestFilterNew(t *testing.T) {
	t.Parallel()

	idx, err := crawlindex.Load(indexPath(t), nil)
	require.NoError(t, err)
	idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{})

	fresh := idx.FilterNew("fierce", []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	})
	assert.Equal(t, []string{"https://example.com/b", "https://example.com/c"}, fresh)
}

func TestResetClearsAllSites(t *testing.T) {
	t.Parallel()

	path := indexPath(t)

	idx, err := crawlindex.Load(path, nil)
	require.NoError(t, err)
	idx.MarkKnown("fierce", "https://example.com/a", crawlindex.Entry{})
	require.NoError(t, idx.Save())

	idx.Reset()
	assert.Zero(t, idx.Len())
	require.NoError(t, idx.Save())

	reloaded, err := crawlindex.Load(path, nil)
	require.NoError(t, err)
	assert.Zero(t, reloaded.Len())
}
