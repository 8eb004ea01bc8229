// Package api exposes the stored corpus over HTTP: stats, semantic
// search, and embedding maintenance operations.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/search"
)

const dateLayout = "2006-01-02"

// Searcher answers semantic queries.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]domain.ArticleMatch, error)
}

// StatsProvider reports content store counts.
type StatsProvider interface {
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (map[domain.EmbeddingStatus]int, error)
}

// Maintainer runs embedding maintenance operations.
type Maintainer interface {
	RetryFailed(ctx context.Context) (*embedding.Result, error)
	VerifySync(ctx context.Context) (*embedding.SyncReport, error)
}

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	searcher   Searcher
	stats      StatsProvider
	maintainer Maintainer
	cfg        ServerConfig
	log        logger.Interface
	httpServer *http.Server
}

// NewServer assembles the API server.
func NewServer(
	searcher Searcher,
	stats StatsProvider,
	maintainer Maintainer,
	cfg ServerConfig,
	log logger.Interface,
) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Server{
		searcher:   searcher,
		stats:      stats,
		maintainer: maintainer,
		cfg:        cfg,
		log:        log.WithComponent("api"),
	}
}

// Router builds the Gin router with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.GET("/search", s.handleSearch)
	router.POST("/embeddings/retry", s.handleRetryFailed)
	router.GET("/embeddings/verify", s.handleVerify)

	return router
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "address", s.cfg.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	total, err := s.stats.Count(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	byStatus, err := s.stats.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": byStatus,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	var params struct {
		Query         string   `form:"q" binding:"required"`
		Limit         int      `form:"limit"`
		MinSimilarity float64  `form:"min_similarity"`
		Sources       []string `form:"source"`
		From          string   `form:"from"`
		To            string   `form:"to"`
	}
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := search.Options{
		Limit:         params.Limit,
		MinSimilarity: params.MinSimilarity,
		Sources:       params.Sources,
	}

	var err error
	if opts.From, err = parseDate(params.From); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
		return
	}
	if opts.To, err = parseDate(params.To); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
		return
	}

	matches, err := s.searcher.Search(c.Request.Context(), params.Query, opts)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   params.Query,
		"count":   len(matches),
		"results": matches,
	})
}

func (s *Server) handleRetryFailed(c *gin.Context) {
	result, err := s.maintainer.RetryFailed(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processed": result.Processed,
		"embedded":  result.Embedded,
		"failed":    result.Failed,
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	report, err := s.maintainer.VerifySync(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"in_sync":            report.InSync(),
		"missing_from_index": report.MissingFromIndex,
		"orphaned":           report.Orphaned,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("request failed",
		"path", c.FullPath(),
		"error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String())
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
