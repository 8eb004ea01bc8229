package embedding

import (
	"context"
	"fmt"

	"github.com/dealharvest/dealharvest/internal/contentstore"
	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/vectorindex"
)

const (
	// DefaultBatchSize is the number of articles embedded per provider call.
	DefaultBatchSize = 32

	// maxEmbedChars caps the text sent to the provider per article.
	maxEmbedChars = 4000

	// snippetChars is the length of the content snippet stored alongside
	// each vector.
	snippetChars = 300
)

// Result summarizes one indexing pass.
type Result struct {
	Processed int
	Embedded  int
	Failed    int
}

// SyncReport describes divergence between the content store and the
// vector index.
type SyncReport struct {
	// MissingFromIndex lists URLs marked embedded in the store but
	// absent from the index.
	MissingFromIndex []string
	// Orphaned lists URLs present in the index with no embedded record
	// in the store.
	Orphaned []string
}

// InSync reports whether store and index agree.
func (r *SyncReport) InSync() bool {
	return len(r.MissingFromIndex) == 0 && len(r.Orphaned) == 0
}

// Indexer moves pending articles from the content store into the vector
// index.
type Indexer struct {
	store     *contentstore.Store
	index     vectorindex.Index
	provider  Provider
	batchSize int
	log       logger.Interface
}

// NewIndexer creates an indexer. A batchSize of zero or less selects
// DefaultBatchSize.
func NewIndexer(
	store *contentstore.Store,
	index vectorindex.Index,
	provider Provider,
	batchSize int,
	log logger.Interface,
) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Indexer{
		store:     store,
		index:     index,
		provider:  provider,
		batchSize: batchSize,
		log:       log.WithComponent("embedding"),
	}
}

// ProcessPending embeds pending articles in batches until none remain
// or maxItems articles have been processed; a maxItems of zero or less
// means no cap. A failed batch degrades to per-article embedding so one
// bad article cannot take down its batchmates; articles that still fail
// are marked failed and the run continues.
func (ix *Indexer) ProcessPending(ctx context.Context, maxItems int) (*Result, error) {
	result := &Result{}

	var lastFirstURL string
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		limit := ix.batchSize
		if maxItems > 0 {
			remaining := maxItems - result.Processed
			if remaining <= 0 {
				break
			}
			if remaining < limit {
				limit = remaining
			}
		}

		// always page from offset 0: embedded and failed articles leave
		// the pending set as we go
		pending, err := ix.store.GetPending(ctx, limit, 0)
		if err != nil {
			return result, fmt.Errorf("failed to load pending articles: %w", err)
		}
		if len(pending) == 0 {
			break
		}

		// a repeating head means status updates are not sticking
		if pending[0].URL == lastFirstURL {
			return result, fmt.Errorf("embedding made no progress at %s", lastFirstURL)
		}
		lastFirstURL = pending[0].URL

		ix.processBatch(ctx, pending, result)
	}

	ix.log.Info("embedding pass complete",
		"processed", result.Processed,
		"embedded", result.Embedded,
		"failed", result.Failed)

	return result, nil
}

// RetryFailed flips failed articles back to pending and runs another
// embedding pass over them.
func (ix *Indexer) RetryFailed(ctx context.Context) (*Result, error) {
	reset, err := ix.store.ResetFailed(ctx)
	if err != nil {
		return nil, err
	}

	ix.log.Info("retrying failed articles", "count", reset)

	return ix.ProcessPending(ctx, 0)
}

// VerifySync compares the store's embedded articles against the index
// contents.
func (ix *Indexer) VerifySync(ctx context.Context) (*SyncReport, error) {
	storeURLs, err := ix.store.EmbeddedURLs(ctx)
	if err != nil {
		return nil, err
	}

	indexURLs, err := ix.index.URLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list index urls: %w", err)
	}

	inIndex := make(map[string]bool, len(indexURLs))
	for _, u := range indexURLs {
		inIndex[u] = true
	}
	inStore := make(map[string]bool, len(storeURLs))
	for _, u := range storeURLs {
		inStore[u] = true
	}

	report := &SyncReport{}
	for _, u := range storeURLs {
		if !inIndex[u] {
			report.MissingFromIndex = append(report.MissingFromIndex, u)
		}
	}
	for _, u := range indexURLs {
		if !inStore[u] {
			report.Orphaned = append(report.Orphaned, u)
		}
	}

	return report, nil
}

func (ix *Indexer) processBatch(
	ctx context.Context,
	articles []*domain.ArticleRecord,
	result *Result,
) {
	texts := make([]string, len(articles))
	for i, article := range articles {
		texts[i] = embedText(article)
	}

	vectors, err := ix.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		ix.log.Warn("batch embed failed, degrading to per-article",
			"batch_size", len(articles),
			"error", err.Error())
		ix.processSingly(ctx, articles, texts, result)
		return
	}

	for i, article := range articles {
		ix.finishArticle(ctx, article, vectors[i], result)
	}
}

func (ix *Indexer) processSingly(
	ctx context.Context,
	articles []*domain.ArticleRecord,
	texts []string,
	result *Result,
) {
	for i, article := range articles {
		vectors, err := ix.provider.EmbedDocuments(ctx, texts[i:i+1])
		if err != nil {
			ix.markFailed(ctx, article.URL, err)
			result.Processed++
			result.Failed++
			continue
		}

		ix.finishArticle(ctx, article, vectors[0], result)
	}
}

func (ix *Indexer) finishArticle(
	ctx context.Context,
	article *domain.ArticleRecord,
	vector []float32,
	result *Result,
) {
	result.Processed++

	doc := vectorindex.Document{
		URL:           article.URL,
		Title:         article.Title,
		Snippet:       truncate(article.Content, snippetChars),
		PublishedDate: article.PublishedDate,
		Source:        article.Source,
		Embedding:     vector,
	}

	if err := ix.index.Upsert(ctx, []vectorindex.Document{doc}); err != nil {
		ix.markFailed(ctx, article.URL, err)
		result.Failed++
		return
	}

	if err := ix.store.MarkEmbedded(ctx, article.URL); err != nil {
		ix.log.Error("failed to mark article embedded",
			"url", article.URL,
			"error", err.Error())
		result.Failed++
		return
	}

	result.Embedded++
}

func (ix *Indexer) markFailed(ctx context.Context, url string, cause error) {
	if err := ix.store.MarkFailed(ctx, url, cause.Error()); err != nil {
		ix.log.Error("failed to mark article failed",
			"url", url,
			"error", err.Error())
	}
}

// embedText builds the provider input for an article: title plus body,
// capped so oversized articles stay within provider limits.
func embedText(article *domain.ArticleRecord) string {
	text := article.Title
	if article.Content != "" {
		text += "\n\n" + article.Content
	}

	return truncate(text, maxEmbedChars)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	// cut on a rune boundary
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}
