// Package common builds the shared dependency graph for command
// implementations.
package common

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/dealharvest/dealharvest/internal/config"
	"github.com/dealharvest/dealharvest/internal/contentstore"
	"github.com/dealharvest/dealharvest/internal/crawlindex"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/fetch"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/pipeline"
	"github.com/dealharvest/dealharvest/internal/search"
	"github.com/dealharvest/dealharvest/internal/sitemap"
	"github.com/dealharvest/dealharvest/internal/sources"
	"github.com/dealharvest/dealharvest/internal/vectorindex"
)

// Deps holds lazily constructed shared dependencies. Commands build
// only the parts they need so a crawl-only run does not require an
// embedding API key.
type Deps struct {
	Cfg *config.Config
	Log logger.Interface

	store    *contentstore.Store
	index    *crawlindex.Index
	vector   vectorindex.Index
	provider embedding.Provider
	fetcher  *fetch.Client
}

// Load reads configuration and constructs the logger.
func Load(cfgFile string) (*Deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	return &Deps{Cfg: cfg, Log: logger.New(cfg.Logger)}, nil
}

// Close releases held resources.
func (d *Deps) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.Log.Warn("failed to close content store", "error", err.Error())
		}
		d.store = nil
	}
}

// Catalog returns the validated site catalog.
func (d *Deps) Catalog() (*sources.Catalog, error) {
	return d.Cfg.Catalog()
}

// Store opens the content store once and reuses it.
func (d *Deps) Store() (*contentstore.Store, error) {
	if d.store != nil {
		return d.store, nil
	}

	store, err := contentstore.Open(d.Cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	d.store = store

	return store, nil
}

// CrawlIndex loads the crawl index once and reuses it.
func (d *Deps) CrawlIndex() (*crawlindex.Index, error) {
	if d.index != nil {
		return d.index, nil
	}

	index, err := crawlindex.Load(d.Cfg.Crawl.IndexPath, d.Log)
	if err != nil {
		return nil, err
	}
	d.index = index

	return index, nil
}

// Fetcher builds the HTTP fetch client with the stealth fallback once
// and reuses it.
func (d *Deps) Fetcher() *fetch.Client {
	if d.fetcher != nil {
		return d.fetcher
	}

	var stealth fetch.StealthClient
	if browser, err := fetch.NewBrowserClient(0); err != nil {
		d.Log.Warn("stealth fallback unavailable", "error", err.Error())
	} else {
		stealth = browser
	}
	d.fetcher = fetch.NewClient(d.Cfg.Fetch, stealth, d.Log)

	return d.fetcher
}

// Walker builds the sitemap walker over the fetch client.
func (d *Deps) Walker() *sitemap.Walker {
	return sitemap.NewWalker(d.Fetcher(), d.Log)
}

// VectorIndex connects to Elasticsearch and ensures the index exists.
func (d *Deps) VectorIndex(ctx context.Context) (vectorindex.Index, error) {
	if d.vector != nil {
		return d.vector, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: d.Cfg.Elasticsearch.Addresses,
		APIKey:    d.Cfg.Elasticsearch.APIKey,
		Username:  d.Cfg.Elasticsearch.Username,
		Password:  d.Cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build elasticsearch client: %w", err)
	}

	index := vectorindex.NewElasticIndex(client, d.Cfg.Elasticsearch.Index, d.Cfg.Embedding.Dims, d.Log)
	if ensureErr := index.EnsureIndex(ctx); ensureErr != nil {
		return nil, ensureErr
	}
	d.vector = index

	return index, nil
}

// EmbeddingProvider builds the configured embedding provider.
func (d *Deps) EmbeddingProvider() (embedding.Provider, error) {
	if d.provider != nil {
		return d.provider, nil
	}

	provider, err := embedding.NewCohereProvider(d.Cfg.Embedding.APIKey, d.Cfg.Embedding.Model)
	if err != nil {
		return nil, err
	}
	d.provider = provider

	return provider, nil
}

// Indexer wires the store, vector index, and provider into an embedding
// indexer.
func (d *Deps) Indexer(ctx context.Context) (*embedding.Indexer, error) {
	store, err := d.Store()
	if err != nil {
		return nil, err
	}

	vector, err := d.VectorIndex(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := d.EmbeddingProvider()
	if err != nil {
		return nil, err
	}

	return embedding.NewIndexer(store, vector, provider, d.Cfg.Embedding.BatchSize, d.Log), nil
}

// Searcher wires the provider and vector index into a searcher.
func (d *Deps) Searcher(ctx context.Context) (*search.Searcher, error) {
	vector, err := d.VectorIndex(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := d.EmbeddingProvider()
	if err != nil {
		return nil, err
	}

	return search.NewSearcher(provider, vector, d.Log), nil
}

// Pipeline assembles the full crawl-and-embed pipeline.
func (d *Deps) Pipeline(ctx context.Context, cfg pipeline.Config) (*pipeline.Pipeline, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return nil, err
	}

	index, err := d.CrawlIndex()
	if err != nil {
		return nil, err
	}

	store, err := d.Store()
	if err != nil {
		return nil, err
	}

	indexer, err := d.Indexer(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.SiteWorkers <= 0 {
		cfg.SiteWorkers = d.Cfg.Crawl.SiteWorkers
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = d.Cfg.Crawl.FetchWorkers
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = d.Cfg.Crawl.CheckpointEvery
	}

	checkpoints := pipeline.NewCheckpointStore(d.Cfg.Crawl.CheckpointPath)

	return pipeline.New(
		catalog, d.Walker(), d.Fetcher(), index, store,
		indexer, checkpoints, cfg, d.Log,
	), nil
}
