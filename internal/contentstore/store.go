// Package contentstore persists fetched articles and their embedding
// status in a local SQLite database.
package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dealharvest/dealharvest/internal/domain"
)

// ErrNotFound is returned when no article exists for a URL.
var ErrNotFound = errors.New("article not found")

// upsertBatchSize caps the number of rows written per transaction.
const upsertBatchSize = 100

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	url              TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	content          TEXT NOT NULL DEFAULT '',
	published_date   TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	lastmod          TEXT NOT NULL DEFAULT '',
	fetched_at       TIMESTAMP NOT NULL,
	embedding_status TEXT NOT NULL DEFAULT 'pending',
	embedded_at      TIMESTAMP,
	error_message    TEXT
);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(embedding_status);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
`

// articleSelectColumns lists columns for SELECT queries on articles.
const articleSelectColumns = `url, title, content, published_date, source, lastmod,
	fetched_at, embedding_status, embedded_at, error_message`

// Store wraps the articles table.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}

	// modernc's driver is not safe for concurrent writers on one file.
	db.SetMaxOpenConns(1)

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply content store schema: %w", execErr)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts the article, or replaces an existing row for the same
// URL. Re-inserting a URL resets its embedding status to pending so a
// refreshed article is re-embedded.
func (s *Store) Upsert(ctx context.Context, article *domain.ArticleRecord) error {
	if article.FetchedAt.IsZero() {
		article.FetchedAt = time.Now().UTC()
	}
	article.Status = domain.StatusPending
	article.EmbeddedAt = nil
	article.ErrorMessage = nil

	query := `
		INSERT INTO articles (url, title, content, published_date, source, lastmod,
			fetched_at, embedding_status, embedded_at, error_message)
		VALUES (:url, :title, :content, :published_date, :source, :lastmod,
			:fetched_at, :embedding_status, :embedded_at, :error_message)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			published_date = excluded.published_date,
			source = excluded.source,
			lastmod = excluded.lastmod,
			fetched_at = excluded.fetched_at,
			embedding_status = excluded.embedding_status,
			embedded_at = excluded.embedded_at,
			error_message = excluded.error_message
	`

	if _, err := s.db.NamedExecContext(ctx, query, article); err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}

	return nil
}

// UpsertBatch writes articles in chunked transactions so one bad row
// does not abort the entire batch of chunks.
func (s *Store) UpsertBatch(ctx context.Context, articles []*domain.ArticleRecord) error {
	for start := 0; start < len(articles); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(articles))
		if err := s.upsertChunk(ctx, articles[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) upsertChunk(ctx context.Context, articles []*domain.ArticleRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO articles (url, title, content, published_date, source, lastmod,
			fetched_at, embedding_status, embedded_at, error_message)
		VALUES (:url, :title, :content, :published_date, :source, :lastmod,
			:fetched_at, :embedding_status, :embedded_at, :error_message)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			published_date = excluded.published_date,
			source = excluded.source,
			lastmod = excluded.lastmod,
			fetched_at = excluded.fetched_at,
			embedding_status = excluded.embedding_status,
			embedded_at = excluded.embedded_at,
			error_message = excluded.error_message
	`

	for _, article := range articles {
		if article.FetchedAt.IsZero() {
			article.FetchedAt = time.Now().UTC()
		}
		article.Status = domain.StatusPending
		article.EmbeddedAt = nil
		article.ErrorMessage = nil

		if _, execErr := tx.NamedExecContext(ctx, query, article); execErr != nil {
			return fmt.Errorf("failed to upsert article %s: %w", article.URL, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("failed to commit upsert batch: %w", commitErr)
	}

	return nil
}

// Get returns a single article by URL.
func (s *Store) Get(ctx context.Context, url string) (*domain.ArticleRecord, error) {
	query := `SELECT ` + articleSelectColumns + ` FROM articles WHERE url = $1`

	var article domain.ArticleRecord
	err := s.db.GetContext(ctx, &article, query, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return &article, nil
}

// GetPending returns up to limit articles awaiting embedding, ordered by
// fetch time so older articles go first. Offset supports paging through
// a large backlog.
func (s *Store) GetPending(ctx context.Context, limit, offset int) ([]*domain.ArticleRecord, error) {
	return s.listByStatus(ctx, domain.StatusPending, limit, offset)
}

// FailedArticles returns up to limit articles whose embedding failed.
func (s *Store) FailedArticles(ctx context.Context, limit int) ([]*domain.ArticleRecord, error) {
	return s.listByStatus(ctx, domain.StatusFailed, limit, 0)
}

// EmbeddedArticles pages through successfully embedded articles.
func (s *Store) EmbeddedArticles(ctx context.Context, limit, offset int) ([]*domain.ArticleRecord, error) {
	return s.listByStatus(ctx, domain.StatusEmbedded, limit, offset)
}

func (s *Store) listByStatus(
	ctx context.Context,
	status domain.EmbeddingStatus,
	limit, offset int,
) ([]*domain.ArticleRecord, error) {
	query := `
		SELECT ` + articleSelectColumns + `
		FROM articles
		WHERE embedding_status = $1
		ORDER BY fetched_at ASC, url ASC
		LIMIT $2 OFFSET $3
	`

	var articles []*domain.ArticleRecord
	if err := s.db.SelectContext(ctx, &articles, query, status, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list %s articles: %w", status, err)
	}

	if articles == nil {
		articles = []*domain.ArticleRecord{}
	}

	return articles, nil
}

// MarkEmbedded records a successful embedding for the URL.
func (s *Store) MarkEmbedded(ctx context.Context, url string) error {
	query := `
		UPDATE articles
		SET embedding_status = $2, embedded_at = $3, error_message = NULL
		WHERE url = $1
	`

	result, err := s.db.ExecContext(ctx, query, url, domain.StatusEmbedded, time.Now().UTC())
	return execRequireRows(result, err, url)
}

// MarkFailed records a failed embedding attempt for the URL, keeping the
// error message for later inspection.
func (s *Store) MarkFailed(ctx context.Context, url, errMsg string) error {
	query := `
		UPDATE articles
		SET embedding_status = $2, embedded_at = NULL, error_message = $3
		WHERE url = $1
	`

	result, err := s.db.ExecContext(ctx, query, url, domain.StatusFailed, errMsg)
	return execRequireRows(result, err, url)
}

// ResetFailed flips all failed articles back to pending so the next
// embedding run retries them. Returns the number of rows reset.
func (s *Store) ResetFailed(ctx context.Context) (int64, error) {
	query := `
		UPDATE articles
		SET embedding_status = $1, error_message = NULL
		WHERE embedding_status = $2
	`

	result, err := s.db.ExecContext(ctx, query, domain.StatusPending, domain.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed articles: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset articles: %w", err)
	}

	return rows, nil
}

// EmbeddedURLs returns the URLs of all embedded articles. Used to verify
// the vector index and content store agree.
func (s *Store) EmbeddedURLs(ctx context.Context) ([]string, error) {
	query := `SELECT url FROM articles WHERE embedding_status = $1 ORDER BY url ASC`

	var urls []string
	if err := s.db.SelectContext(ctx, &urls, query, domain.StatusEmbedded); err != nil {
		return nil, fmt.Errorf("failed to list embedded urls: %w", err)
	}

	return urls, nil
}

// Count returns the total number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM articles`); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}

	return count, nil
}

// Stats returns article counts grouped by embedding status.
func (s *Store) Stats(ctx context.Context) (map[domain.EmbeddingStatus]int, error) {
	query := `SELECT embedding_status, COUNT(*) AS n FROM articles GROUP BY embedding_status`

	rows := []struct {
		Status domain.EmbeddingStatus `db:"embedding_status"`
		N      int                    `db:"n"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to collect article stats: %w", err)
	}

	stats := make(map[domain.EmbeddingStatus]int, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.N
	}

	return stats, nil
}

// execRequireRows converts a zero-row UPDATE into ErrNotFound.
func execRequireRows(result sql.Result, err error, url string) error {
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", url, err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("failed to read rows affected: %w", rowsErr)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}

	return nil
}
