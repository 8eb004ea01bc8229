// Package sources provides the static site catalog: per-site sitemap
// roots, RSS fallback feeds, URL filters, and crawl limits. The catalog
// is loaded once at startup and never mutated.
package sources

import (
	"errors"
	"fmt"
	"regexp"
)

// DefaultMaxSubSitemaps bounds sitemap-index fan-out per site when the
// catalog does not specify one.
const DefaultMaxSubSitemaps = 10

// ErrEmptyCatalog is returned when the catalog contains no sites.
var ErrEmptyCatalog = errors.New("site catalog is empty")

// Site is the immutable configuration of one news source.
type Site struct {
	// Name identifies the site in logs, the crawl index, and stored records.
	Name string `yaml:"name" mapstructure:"name"`
	// SitemapURLs are the sitemap roots to walk, in order.
	SitemapURLs []string `yaml:"sitemap_urls" mapstructure:"sitemap_urls"`
	// RSSFeeds are fallback feeds used when sitemaps yield nothing.
	RSSFeeds []string `yaml:"rss_feeds" mapstructure:"rss_feeds"`
	// AllowPatterns: when non-empty, a URL must match at least one.
	AllowPatterns []string `yaml:"allow_patterns" mapstructure:"allow_patterns"`
	// BlockPatterns: a matching URL is always excluded. Block wins over allow.
	BlockPatterns []string `yaml:"block_patterns" mapstructure:"block_patterns"`
	// MaxSubSitemaps caps sitemap-index fan-out. Zero means the default.
	MaxSubSitemaps int `yaml:"max_sub_sitemaps" mapstructure:"max_sub_sitemaps"`
	// MinArchiveYear skips sub-sitemaps whose name carries an older year
	// token. Zero disables the filter.
	MinArchiveYear int `yaml:"min_archive_year" mapstructure:"min_archive_year"`

	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// Catalog is the full set of configured sites.
type Catalog struct {
	sites []*Site
}

// NewCatalog validates the given sites, compiles their URL filters, and
// returns an immutable catalog.
func NewCatalog(sites []*Site) (*Catalog, error) {
	if len(sites) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]bool, len(sites))
	for _, site := range sites {
		if err := site.compile(); err != nil {
			return nil, err
		}
		if seen[site.Name] {
			return nil, fmt.Errorf("duplicate site name: %s", site.Name)
		}
		seen[site.Name] = true
	}

	return &Catalog{sites: sites}, nil
}

// compile validates the site and compiles its filter patterns.
func (s *Site) compile() error {
	if s.Name == "" {
		return errors.New("site name is required")
	}
	if len(s.SitemapURLs) == 0 && len(s.RSSFeeds) == 0 {
		return fmt.Errorf("site %s: at least one sitemap or RSS feed is required", s.Name)
	}
	if s.MaxSubSitemaps <= 0 {
		s.MaxSubSitemaps = DefaultMaxSubSitemaps
	}

	var err error
	if s.allow, err = compilePatterns(s.AllowPatterns); err != nil {
		return fmt.Errorf("site %s: allow pattern: %w", s.Name, err)
	}
	if s.block, err = compilePatterns(s.BlockPatterns); err != nil {
		return fmt.Errorf("site %s: block pattern: %w", s.Name, err)
	}

	return nil
}

// compilePatterns compiles a list of regular expressions.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Sites returns all sites in catalog order.
func (c *Catalog) Sites() []*Site {
	return c.sites
}

// Get returns the site with the given name, or nil if not present.
func (c *Catalog) Get(name string) *Site {
	for _, s := range c.sites {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// AllowsURL reports whether the URL passes the site's allow/block
// filters. Block patterns take precedence; when allow patterns exist,
// the URL must match at least one.
func (s *Site) AllowsURL(url string) bool {
	for _, re := range s.block {
		if re.MatchString(url) {
			return false
		}
	}

	if len(s.allow) == 0 {
		return true
	}
	for _, re := range s.allow {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}
