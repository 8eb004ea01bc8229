// Package crawlindex persists the set of URLs already seen by the
// crawler so repeated runs only process newly discovered links.
package crawlindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dealharvest/dealharvest/internal/logger"
)

// Entry is the metadata recorded for one known URL.
type Entry struct {
	// Published is the article's published date (YYYY-MM-DD), empty
	// when discovery carried none.
	Published string `json:"published,omitempty"`
	// CrawledAt is when the URL was recorded.
	CrawledAt time.Time `json:"crawled_at"`
}

// snapshot is the on-disk representation of the index.
type snapshot struct {
	UpdatedAt time.Time                   `json:"updated_at"`
	Sites     map[string]map[string]Entry `json:"sites"`
}

// Index is a thread-safe map of known URLs to their crawl metadata,
// grouped by site and backed by a JSON snapshot file.
type Index struct {
	mu    sync.RWMutex
	path  string
	sites map[string]map[string]Entry
	log   logger.Interface
	dirty bool
}

// Load opens the index at path, creating an empty one if the file does
// not exist. A corrupt snapshot is discarded with a warning rather than
// aborting the run.
func Load(path string, log logger.Interface) (*Index, error) {
	if log == nil {
		log = logger.NewNoOp()
	}

	idx := &Index{
		path:  path,
		sites: make(map[string]map[string]Entry),
		log:   log.WithComponent("crawlindex"),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read crawl index: %w", err)
	}

	var snap snapshot
	if unmarshalErr := json.Unmarshal(data, &snap); unmarshalErr != nil {
		idx.log.Warn("discarding corrupt crawl index",
			"path", path,
			"error", unmarshalErr.Error())
		return idx, nil
	}

	for site, entries := range snap.Sites {
		byURL := make(map[string]Entry, len(entries))
		for u, entry := range entries {
			byURL[u] = entry
		}
		idx.sites[site] = byURL
	}

	return idx, nil
}

// IsKnown reports whether the URL has already been recorded for the site.
func (idx *Index) IsKnown(site, url string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.sites[site][url]
	return ok
}

// Get returns the recorded metadata for a URL.
func (idx *Index) Get(site, url string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entry, ok := idx.sites[site][url]
	return entry, ok
}

// MarkKnown records the URL for the site with its metadata. A zero
// CrawledAt is filled with the current time. Returns false if the URL
// was already present; existing metadata is kept.
func (idx *Index) MarkKnown(site, url string, entry Entry) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byURL, ok := idx.sites[site]
	if !ok {
		byURL = make(map[string]Entry)
		idx.sites[site] = byURL
	}

	if _, exists := byURL[url]; exists {
		return false
	}

	if entry.CrawledAt.IsZero() {
		entry.CrawledAt = time.Now().UTC()
	}

	byURL[url] = entry
	idx.dirty = true

	return true
}

// FilterNew returns the subset of urls not yet known for the site,
// preserving order.
func (idx *Index) FilterNew(site string, urls []string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byURL := idx.sites[site]
	fresh := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := byURL[u]; !ok {
			fresh = append(fresh, u)
		}
	}

	return fresh
}

// Save writes the index to disk atomically. A temp file in the same
// directory is renamed over the snapshot so a crash mid-write never
// leaves a truncated index.
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	snap := snapshot{
		UpdatedAt: time.Now().UTC(),
		Sites:     idx.sites,
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal crawl index: %w", err)
	}

	dir := filepath.Dir(idx.path)
	if mkdirErr := os.MkdirAll(dir, 0o755); mkdirErr != nil {
		return fmt.Errorf("failed to create index directory: %w", mkdirErr)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(idx.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}

	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp index: %w", writeErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp index: %w", closeErr)
	}

	if renameErr := os.Rename(tmp.Name(), idx.path); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace crawl index: %w", renameErr)
	}

	idx.dirty = false

	return nil
}

// Reset drops all recorded URLs. The snapshot on disk is untouched
// until the next Save.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.sites = make(map[string]map[string]Entry)
	idx.dirty = true
}

// Dirty reports whether the in-memory index has unsaved changes.
func (idx *Index) Dirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.dirty
}

// Stats returns the number of known URLs per site.
func (idx *Index) Stats() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := make(map[string]int, len(idx.sites))
	for site, byURL := range idx.sites {
		stats[site] = len(byURL)
	}

	return stats
}

// Len returns the total number of known URLs across all sites.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	total := 0
	for _, byURL := range idx.sites {
		total += len(byURL)
	}

	return total
}
