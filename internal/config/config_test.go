package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/config"
)

const sampleConfig = `
app:
  environment: development
logger:
  level: warn
fetch:
  timeout: 10s
  requests_per_sec: 2
crawl:
  site_workers: 3
sites:
  - name: fierce
    sitemap_urls:
      - https://www.fiercebiotech.com/sitemap.xml
    allow_patterns:
      - /biotech/
    min_archive_year: 2020
  - name: endpoints
    sitemap_urls:
      - https://endpts.com/sitemap_index.xml
    rss_feeds:
      - https://endpts.com/feed/
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "app:\n  name: dealharvest\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "data/articles.db", cfg.Store.Path)
	assert.Equal(t, "dealharvest-articles", cfg.Elasticsearch.Index)
	assert.Equal(t, 0.85, cfg.Dedup.NearDupThreshold)
	assert.Equal(t, 3, cfg.Dedup.DealWindowDays)
	assert.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Crawl.SiteWorkers)
	require.Len(t, cfg.Sites, 2)
	assert.Equal(t, 2020, cfg.Sites[0].MinArchiveYear)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("COHERE_API_KEY", "test-key")

	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "test-key", cfg.Embedding.APIKey)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestCatalogFromConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	require.Len(t, catalog.Sites(), 2)
	assert.True(t, catalog.Get("fierce").AllowsURL("https://www.fiercebiotech.com/biotech/deal"))
	assert.False(t, catalog.Get("fierce").AllowsURL("https://www.fiercebiotech.com/medtech/item"))
}

func TestDebugFlagForcesDebugLogging(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "app:\n  debug: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.Development)
}
