// Package pipeline wires discovery, fetching, storage, and embedding
// into one resumable multi-stage run.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dealharvest/dealharvest/internal/crawlindex"
	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/fetch"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/sources"
)

// Stage names, in execution order.
const (
	StageCrawl = "crawl"
	StageEmbed = "embed"
)

// DropReason tags why a discovered URL produced no stored article.
type DropReason string

const (
	// DropKnown marks URLs skipped because a prior run recorded them.
	DropKnown DropReason = "already_known"
	// DropFetchFailed marks URLs whose article fetch failed after
	// retries.
	DropFetchFailed DropReason = "fetch_failed"
	// DropEmptyContent marks pages that fetched fine but yielded no
	// extractable article text.
	DropEmptyContent DropReason = "empty_content"
)

const (
	defaultSiteWorkers     = 2
	defaultFetchWorkers    = 4
	defaultCheckpointEvery = 50
)

// Config tunes one pipeline run.
type Config struct {
	// From and To bound the published-date window. Zero values leave
	// that side open.
	From time.Time
	To   time.Time
	// SiteWorkers is how many sites crawl concurrently.
	SiteWorkers int
	// FetchWorkers is how many article fetches run concurrently per
	// site.
	FetchWorkers int
	// CheckpointEvery is how many articles a site crawl processes
	// between intra-site checkpoint saves.
	CheckpointEvery int
}

// Discoverer produces candidate URLs for a site.
type Discoverer interface {
	Walk(ctx context.Context, site *sources.Site, from, to time.Time) ([]domain.DiscoveredURL, error)
}

// ArticleFetcher retrieves and extracts one article.
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, url string) (*fetch.Article, error)
}

// ArticleStore persists fetched articles.
type ArticleStore interface {
	UpsertBatch(ctx context.Context, articles []*domain.ArticleRecord) error
}

// Embedder drains the store's pending articles into the vector index.
// A maxItems of zero means no cap.
type Embedder interface {
	ProcessPending(ctx context.Context, maxItems int) (*embedding.Result, error)
}

// SiteResult summarizes one site's crawl.
type SiteResult struct {
	Discovered int    `json:"discovered"`
	New        int    `json:"new"`
	Stored     int    `json:"stored"`
	Error      string `json:"error,omitempty"`
}

// Summary reports a completed (or aborted) pipeline run.
type Summary struct {
	RunID       string                 `json:"run_id"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	Sites       map[string]*SiteResult `json:"sites"`
	Discovered  int                    `json:"discovered"`
	NewURLs     int                    `json:"new_urls"`
	Stored      int                    `json:"stored"`
	Embedded    int                    `json:"embedded"`
	EmbedFailed int                    `json:"embed_failed"`
	Drops       map[DropReason]int     `json:"drops"`
}

// Pipeline runs the crawl and embed stages over the site catalog.
type Pipeline struct {
	catalog     *sources.Catalog
	walker      Discoverer
	fetcher     ArticleFetcher
	index       *crawlindex.Index
	store       ArticleStore
	embedder    Embedder
	checkpoints *CheckpointStore
	cfg         Config
	log         logger.Interface

	mu      sync.Mutex
	summary *Summary
}

// New assembles a pipeline from its stage implementations.
func New(
	catalog *sources.Catalog,
	walker Discoverer,
	fetcher ArticleFetcher,
	index *crawlindex.Index,
	store ArticleStore,
	embedder Embedder,
	checkpoints *CheckpointStore,
	cfg Config,
	log logger.Interface,
) *Pipeline {
	if cfg.SiteWorkers <= 0 {
		cfg.SiteWorkers = defaultSiteWorkers
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = defaultFetchWorkers
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = defaultCheckpointEvery
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Pipeline{
		catalog:     catalog,
		walker:      walker,
		fetcher:     fetcher,
		index:       index,
		store:       store,
		embedder:    embedder,
		checkpoints: checkpoints,
		cfg:         cfg,
		log:         log.WithComponent("pipeline"),
	}
}

// Run executes the crawl stage over every site, then the embed stage.
// An interrupted run leaves its checkpoint in place; the next Run skips
// sites the checkpoint marks complete. A run that finishes both stages
// clears the checkpoint.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	cp, err := p.checkpoints.Load()
	if err != nil {
		return nil, err
	}

	p.summary = &Summary{
		RunID:     cp.RunID,
		StartedAt: time.Now().UTC(),
		Sites:     make(map[string]*SiteResult),
		Drops:     make(map[DropReason]int),
	}

	p.log.Info("pipeline run starting",
		"run_id", cp.RunID,
		"sites", len(p.catalog.Sites()),
		"site_workers", p.cfg.SiteWorkers)

	if crawlErr := p.runCrawlStage(ctx, cp); crawlErr != nil {
		p.summary.FinishedAt = time.Now().UTC()
		return p.summary, crawlErr
	}

	if embedErr := p.runEmbedStage(ctx, cp); embedErr != nil {
		p.summary.FinishedAt = time.Now().UTC()
		return p.summary, embedErr
	}

	if clearErr := p.checkpoints.Clear(); clearErr != nil {
		p.log.Warn("failed to clear checkpoint", "error", clearErr.Error())
	}

	p.summary.FinishedAt = time.Now().UTC()

	p.log.Info("pipeline run complete",
		"run_id", p.summary.RunID,
		"discovered", p.summary.Discovered,
		"stored", p.summary.Stored,
		"embedded", p.summary.Embedded)

	return p.summary, nil
}

func (p *Pipeline) runCrawlStage(ctx context.Context, cp *Checkpoint) error {
	stage := cp.Stage(StageCrawl)
	if stage.Done {
		p.log.Info("crawl stage already complete, skipping")
		return nil
	}

	sem := make(chan struct{}, p.cfg.SiteWorkers)
	var wg sync.WaitGroup

	for _, site := range p.catalog.Sites() {
		p.mu.Lock()
		alreadyCrawled := stage.Partial[site.Name]
		p.mu.Unlock()
		if alreadyCrawled {
			p.log.Debug("site already crawled this run", "site", site.Name)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)
		go func(site *sources.Site) {
			defer func() {
				<-sem
				wg.Done()
			}()

			if siteErr := p.crawlSite(ctx, cp, site); siteErr != nil {
				p.recordSiteError(site.Name, siteErr)
				return
			}

			p.finishSite(cp, stage, site.Name)
		}(site)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	stage.Done = true
	if saveErr := p.saveCheckpoint(cp); saveErr != nil {
		return saveErr
	}

	return p.index.Save()
}

func (p *Pipeline) runEmbedStage(ctx context.Context, cp *Checkpoint) error {
	stage := cp.Stage(StageEmbed)

	result, err := p.embedder.ProcessPending(ctx, 0)
	if result != nil {
		p.mu.Lock()
		p.summary.Embedded = result.Embedded
		p.summary.EmbedFailed = result.Failed
		p.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("embed stage failed: %w", err)
	}

	stage.Done = true

	return p.saveCheckpoint(cp)
}

// crawlSite walks one site's sitemaps, fetches the unseen URLs in
// checkpoint-sized batches, and stores the extracted articles. Interim
// state is persisted between batches so an interrupt loses at most one
// batch of fetches.
func (p *Pipeline) crawlSite(ctx context.Context, cp *Checkpoint, site *sources.Site) error {
	discovered, err := p.walker.Walk(ctx, site, p.cfg.From, p.cfg.To)
	if err != nil {
		return fmt.Errorf("discovery failed for %s: %w", site.Name, err)
	}

	fresh := make([]domain.DiscoveredURL, 0, len(discovered))
	for _, d := range discovered {
		if p.index.IsKnown(site.Name, d.URL) {
			p.recordDrop(DropKnown)
			continue
		}
		fresh = append(fresh, d)
	}

	stored := 0
	for start := 0; start < len(fresh); start += p.cfg.CheckpointEvery {
		end := min(start+p.cfg.CheckpointEvery, len(fresh))

		articles := p.fetchAll(ctx, site.Name, fresh[start:end])

		if len(articles) > 0 {
			if storeErr := p.store.UpsertBatch(ctx, articles); storeErr != nil {
				return fmt.Errorf("store failed for %s: %w", site.Name, storeErr)
			}
		}

		// mark only stored URLs known so dropped fetches retry next run
		for _, article := range articles {
			p.index.MarkKnown(site.Name, article.URL, crawlindex.Entry{
				Published: article.PublishedDate,
			})
		}
		stored += len(articles)

		if end < len(fresh) {
			if saveErr := p.index.Save(); saveErr != nil {
				p.log.Error("failed to save crawl index", "error", saveErr.Error())
			}
			if saveErr := p.saveCheckpoint(cp); saveErr != nil {
				p.log.Error("failed to save checkpoint", "error", saveErr.Error())
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	p.recordSiteResult(site.Name, len(discovered), len(fresh), stored)

	p.log.Info("site crawl complete",
		"site", site.Name,
		"discovered", len(discovered),
		"new", len(fresh),
		"stored", stored)

	return ctx.Err()
}

// fetchAll retrieves article bodies for the given URLs with bounded
// concurrency.
func (p *Pipeline) fetchAll(
	ctx context.Context,
	siteName string,
	urls []domain.DiscoveredURL,
) []*domain.ArticleRecord {
	sem := make(chan struct{}, p.cfg.FetchWorkers)
	var wg sync.WaitGroup

	var mu sync.Mutex
	articles := make([]*domain.ArticleRecord, 0, len(urls))

	for _, d := range urls {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return articles
		}

		wg.Add(1)
		go func(d domain.DiscoveredURL) {
			defer func() {
				<-sem
				wg.Done()
			}()

			article, fetchErr := p.fetcher.FetchArticle(ctx, d.URL)
			if fetchErr != nil {
				p.log.Warn("article fetch failed",
					"url", d.URL,
					"error", fetchErr.Error())
				p.recordDrop(DropFetchFailed)
				return
			}
			if article.Content == "" {
				p.recordDrop(DropEmptyContent)
				return
			}

			record := buildRecord(siteName, d, article)

			mu.Lock()
			articles = append(articles, record)
			mu.Unlock()
		}(d)
	}

	wg.Wait()

	return articles
}

func (p *Pipeline) finishSite(cp *Checkpoint, stage *StageState, siteName string) {
	p.mu.Lock()
	stage.Partial[siteName] = true
	stage.Completed++
	p.mu.Unlock()

	if err := p.index.Save(); err != nil {
		p.log.Error("failed to save crawl index", "error", err.Error())
	}
	if err := p.saveCheckpoint(cp); err != nil {
		p.log.Error("failed to save checkpoint", "error", err.Error())
	}
}

// saveCheckpoint snapshots the checkpoint under the pipeline lock
// before persisting, so concurrently finishing sites never mutate the
// stage maps mid-marshal.
func (p *Pipeline) saveCheckpoint(cp *Checkpoint) error {
	p.mu.Lock()
	snap := cp.Clone()
	p.mu.Unlock()

	return p.checkpoints.Save(snap)
}

func (p *Pipeline) recordDrop(reason DropReason) {
	p.mu.Lock()
	p.summary.Drops[reason]++
	p.mu.Unlock()
}

func (p *Pipeline) recordSiteResult(siteName string, discovered, fresh, stored int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.summary.Sites[siteName] = &SiteResult{
		Discovered: discovered,
		New:        fresh,
		Stored:     stored,
	}
	p.summary.Discovered += discovered
	p.summary.NewURLs += fresh
	p.summary.Stored += stored
}

func (p *Pipeline) recordSiteError(siteName string, err error) {
	p.log.Error("site crawl failed", "site", siteName, "error", err.Error())

	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.summary.Sites[siteName]
	if !ok {
		result = &SiteResult{}
		p.summary.Sites[siteName] = result
	}
	result.Error = err.Error()
}

func buildRecord(
	siteName string,
	d domain.DiscoveredURL,
	article *fetch.Article,
) *domain.ArticleRecord {
	published := ""
	if d.Published != nil {
		published = d.Published.Format("2006-01-02")
	} else if !article.Published.IsZero() {
		published = article.Published.Format("2006-01-02")
	}

	title := article.Title
	if title == "" {
		title = d.Title
	}

	return &domain.ArticleRecord{
		URL:           d.URL,
		Title:         title,
		Content:       article.Content,
		PublishedDate: published,
		Source:        siteName,
		LastMod:       published,
		FetchedAt:     time.Now().UTC(),
		Status:        domain.StatusPending,
	}
}
