// Package config loads application configuration from a YAML file,
// environment variables, and a local .env file, in ascending precedence
// of defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dealharvest/dealharvest/internal/dealdup"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/fetch"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/neardup"
	"github.com/dealharvest/dealharvest/internal/search"
	"github.com/dealharvest/dealharvest/internal/sources"
)

// AppConfig identifies the running application.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// CrawlConfig tunes the crawl stage.
type CrawlConfig struct {
	IndexPath       string `mapstructure:"index_path"`
	CheckpointPath  string `mapstructure:"checkpoint_path"`
	SiteWorkers     int    `mapstructure:"site_workers"`
	FetchWorkers    int    `mapstructure:"fetch_workers"`
	CheckpointEvery int    `mapstructure:"checkpoint_every"`
}

// StoreConfig locates the content store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ElasticsearchConfig connects the vector index.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	APIKey    string   `mapstructure:"api_key"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Dims      int    `mapstructure:"dims"`
	BatchSize int    `mapstructure:"batch_size"`
}

// SearchConfig sets search defaults.
type SearchConfig struct {
	Limit         int     `mapstructure:"limit"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

// DedupConfig tunes both deduplication passes.
type DedupConfig struct {
	NearDupThreshold float64 `mapstructure:"neardup_threshold"`
	DealWindowDays   int     `mapstructure:"deal_window_days"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ScheduleConfig drives the recurring update job.
type ScheduleConfig struct {
	// Cron is a standard 5-field cron expression.
	Cron string `mapstructure:"cron"`
	// LookbackDays is how far back each scheduled crawl reaches.
	LookbackDays int `mapstructure:"lookback_days"`
}

// SiteConfig is the file representation of one catalog entry.
type SiteConfig struct {
	Name           string   `mapstructure:"name"`
	SitemapURLs    []string `mapstructure:"sitemap_urls"`
	RSSFeeds       []string `mapstructure:"rss_feeds"`
	AllowPatterns  []string `mapstructure:"allow_patterns"`
	BlockPatterns  []string `mapstructure:"block_patterns"`
	MaxSubSitemaps int      `mapstructure:"max_sub_sitemaps"`
	MinArchiveYear int      `mapstructure:"min_archive_year"`
}

// Config is the full application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logger        logger.Config       `mapstructure:"logger"`
	Fetch         fetch.Config        `mapstructure:"fetch"`
	Crawl         CrawlConfig         `mapstructure:"crawl"`
	Store         StoreConfig         `mapstructure:"store"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Search        SearchConfig        `mapstructure:"search"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	Server        ServerConfig        `mapstructure:"server"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
	Sites         []SiteConfig        `mapstructure:"sites"`
}

// Load reads configuration. cfgFile may be empty, in which case
// config.yaml is searched for in the working directory and ./config.
// A missing config file is not an error; defaults and environment
// variables still apply.
func Load(cfgFile string) (*Config, error) {
	// make .env variables visible before viper reads the environment
	_ = godotenv.Load()

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.App.Debug {
		cfg.Logger.Level = "debug"
		cfg.Logger.Development = true
	}

	return &cfg, nil
}

// Catalog converts the configured sites into a validated catalog.
func (c *Config) Catalog() (*sources.Catalog, error) {
	sites := make([]*sources.Site, 0, len(c.Sites))
	for _, sc := range c.Sites {
		sites = append(sites, &sources.Site{
			Name:           sc.Name,
			SitemapURLs:    sc.SitemapURLs,
			RSSFeeds:       sc.RSSFeeds,
			AllowPatterns:  sc.AllowPatterns,
			BlockPatterns:  sc.BlockPatterns,
			MaxSubSitemaps: sc.MaxSubSitemaps,
			MinArchiveYear: sc.MinArchiveYear,
		})
	}

	return sources.NewCatalog(sites)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app", map[string]any{
		"name":        "dealharvest",
		"environment": "production",
		"debug":       false,
	})

	v.SetDefault("logger", map[string]any{
		"level":       "info",
		"encoding":    "json",
		"development": false,
	})

	v.SetDefault("fetch", map[string]any{
		"user_agent":       fetch.DefaultUserAgent,
		"timeout":          "30s",
		"requests_per_sec": 1.0,
		"max_retries":      3,
	})

	v.SetDefault("crawl", map[string]any{
		"index_path":       "data/crawl_index.json",
		"checkpoint_path":  "data/checkpoint.json",
		"site_workers":     2,
		"fetch_workers":    4,
		"checkpoint_every": 50,
	})

	v.SetDefault("store", map[string]any{
		"path": "data/articles.db",
	})

	v.SetDefault("elasticsearch", map[string]any{
		"addresses": []string{"http://127.0.0.1:9200"},
		"index":     "dealharvest-articles",
	})

	v.SetDefault("embedding", map[string]any{
		"model":      embedding.DefaultModel,
		"dims":       embedding.DefaultDims,
		"batch_size": embedding.DefaultBatchSize,
	})

	v.SetDefault("search", map[string]any{
		"limit":          search.DefaultLimit,
		"min_similarity": 0.0,
	})

	v.SetDefault("dedup", map[string]any{
		"neardup_threshold": neardup.DefaultThreshold,
		"deal_window_days":  dealdup.DefaultWindowDays,
	})

	v.SetDefault("server", map[string]any{
		"address":       ":8080",
		"read_timeout":  "15s",
		"write_timeout": "15s",
	})

	v.SetDefault("schedule", map[string]any{
		"cron":          "0 6 * * *",
		"lookback_days": 7,
	})
}

func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"app.environment":         {"APP_ENV"},
		"app.debug":               {"APP_DEBUG"},
		"logger.level":            {"LOG_LEVEL"},
		"logger.encoding":         {"LOG_FORMAT"},
		"embedding.api_key":       {"COHERE_API_KEY"},
		"elasticsearch.addresses": {"ELASTICSEARCH_ADDRESSES", "ELASTICSEARCH_HOSTS"},
		"elasticsearch.api_key":   {"ELASTICSEARCH_API_KEY"},
		"elasticsearch.password":  {"ELASTIC_PASSWORD", "ELASTICSEARCH_PASSWORD"},
	}

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return nil
}
