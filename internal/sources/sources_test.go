package sources_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/sources"
)

func validSite(name string) *sources.Site {
	return &sources.Site{
		Name:        name,
		SitemapURLs: []string{"https://example.com/sitemap.xml"},
	}
}

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	catalog, err := sources.NewCatalog([]*sources.Site{validSite("a"), validSite("b")})
	require.NoError(t, err)
	require.Len(t, catalog.Sites(), 2)
	assert.Equal(t, "a", catalog.Get("a").Name)
	assert.Nil(t, catalog.Get("missing"))
}

func TestNewCatalogRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := sources.NewCatalog(nil)
	require.ErrorIs(t, err, sources.ErrEmptyCatalog)
}

func TestNewCatalogRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	_, err := sources.NewCatalog([]*sources.Site{validSite("a"), validSite("a")})
	require.Error(t, err)
}

func TestNewCatalogRejectsSiteWithoutFeeds(t *testing.T) {
	t.Parallel()

	_, err := sources.NewCatalog([]*sources.Site{{Name: "empty"}})
	require.Error(t, err)
}

func TestNewCatalogRejectsBadPattern(t *testing.T) {
	t.Parallel()

	site := validSite("a")
	site.AllowPatterns = []string{"["}
	_, err := sources.NewCatalog([]*sources.Site{site})
	require.Error(t, err)
}

func TestNewCatalogAppliesFanOutDefault(t *testing.T) {
	t.Parallel()

	site := validSite("a")
	_, err := sources.NewCatalog([]*sources.Site{site})
	require.NoError(t, err)
	assert.Equal(t, sources.DefaultMaxSubSitemaps, site.MaxSubSitemaps)
}

func TestAllowsURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		allow   []string
		block   []string
		url     string
		allowed bool
	}{
		{name: "no filters includes all", url: "https://example.com/x", allowed: true},
		{
			name:    "block wins over allow",
			allow:   []string{`/news/`},
			block:   []string{`/news/sponsored/`},
			url:     "https://example.com/news/sponsored/x",
			allowed: false,
		},
		{
			name:    "allow requires a match",
			allow:   []string{`/news/`},
			url:     "https://example.com/about",
			allowed: false,
		},
		{
			name:    "allow match passes",
			allow:   []string{`/news/`},
			url:     "https://example.com/news/deal",
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			site := validSite("a")
			site.AllowPatterns = tt.allow
			site.BlockPatterns = tt.block
			_, err := sources.NewCatalog([]*sources.Site{site})
			require.NoError(t, err)

			assert.Equal(t, tt.allowed, site.AllowsURL(tt.url))
		})
	}
}
