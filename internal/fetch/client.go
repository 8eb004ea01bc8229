package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/metrics"
	"github.com/dealharvest/dealharvest/internal/retry"
)

// maxResponseBodyBytes limits the size of fetched responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// challengeBodyMaxLen is the longest body still considered a candidate
// challenge page. Real articles are longer; challenge interstitials are
// short.
const challengeBodyMaxLen = 5000

// defaultTimeout bounds the direct fetch path.
const defaultTimeout = 30 * time.Second

// DefaultUserAgent identifies direct (non-stealth) requests.
const DefaultUserAgent = "dealharvest/1.0 (+https://github.com/dealharvest/dealharvest)"

// Result is a successfully fetched response body.
type Result struct {
	Body       string
	StatusCode int
}

// Config holds fetcher configuration.
type Config struct {
	UserAgent      string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxRetries     uint64        `yaml:"max_retries" mapstructure:"max_retries"`
}

// Client fetches URLs, trying a fast direct request first and falling
// back to the stealth path on blocking signals.
type Client struct {
	http    *http.Client
	stealth StealthClient
	limiter *HostLimiter
	log     logger.Interface
	metrics *metrics.FetchMetrics

	userAgent string
	retryCfg  retry.Config
}

// NewClient creates a fetch client. A nil stealth client disables the
// fallback path; blocking signals then surface directly as ErrBlocked.
func NewClient(cfg Config, stealth StealthClient, log logger.Interface) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		stealth:   stealth,
		limiter:   NewHostLimiter(cfg.RequestsPerSec),
		log:       log.WithComponent("fetch"),
		metrics:   metrics.NewFetchMetrics(),
		userAgent: cfg.UserAgent,
		retryCfg: retry.Config{
			MaxAttempts: cfg.MaxRetries,
			Retryable:   isTransient,
		},
	}
}

// Fetch retrieves the URL and returns its body. Transient network
// failures are retried with backoff; a blocked direct request falls
// back to the stealth path; permanent failures return a typed error.
func (c *Client) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := c.limiter.Wait(ctx, url); err != nil {
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	c.metrics.RecordRequest()

	var result *Result
	err := retry.Do(ctx, c.retryCfg, func() error {
		r, fetchErr := c.fetchOnce(ctx, url)
		if fetchErr != nil {
			return fetchErr
		}
		result = r
		return nil
	})
	if err == nil {
		c.metrics.RecordSuccess()
		return result, nil
	}

	if errors.Is(err, ErrBlocked) {
		c.metrics.RecordBlocked()
		if c.stealth != nil {
			return c.fetchStealth(ctx, url)
		}
	}

	c.metrics.RecordFailure()
	if isTimeout(err) {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrTimeout)
	}

	return nil, err
}

// Metrics returns a snapshot of fetch counters for this client.
func (c *Client) Metrics() metrics.Snapshot {
	return c.metrics.Snapshot()
}

// fetchOnce performs a single direct GET.
func (c *Client) fetchOnce(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fetch new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", browserHeaders["Accept"])

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch do request: %w", err)
	}
	defer resp.Body.Close()

	if typedErr := classifyStatus(url, resp.StatusCode); typedErr != nil {
		return nil, typedErr
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch read body: %w", err)
	}

	body := string(raw)
	if isChallengePage(body) {
		return nil, fmt.Errorf("fetch %s: challenge page: %w", url, ErrBlocked)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("fetch %s: empty body: %w", url, ErrMalformed)
	}

	return &Result{Body: body, StatusCode: resp.StatusCode}, nil
}

// fetchStealth retries the URL through the stealth fallback.
func (c *Client) fetchStealth(ctx context.Context, url string) (*Result, error) {
	c.log.Info("direct fetch blocked, using stealth fallback", "url", url)
	c.metrics.RecordStealthFallback()

	body, err := c.stealth.Fetch(ctx, url)
	if err != nil {
		c.metrics.RecordFailure()
		return nil, fmt.Errorf("stealth fallback: %w", err)
	}
	if strings.TrimSpace(body) == "" {
		c.metrics.RecordFailure()
		return nil, fmt.Errorf("stealth fetch %s: empty body: %w", url, ErrMalformed)
	}

	c.metrics.RecordSuccess()
	return &Result{Body: body, StatusCode: http.StatusOK}, nil
}

// classifyStatus maps HTTP status codes to typed fetch errors.
// A nil return means the status is acceptable.
func classifyStatus(url string, status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusForbidden:
		return fmt.Errorf("fetch %s: status 403: %w", url, ErrBlocked)
	case status == http.StatusNotFound:
		return fmt.Errorf("fetch %s: status 404: %w", url, ErrNotFound)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("fetch %s: transient status %d", url, status)
	default:
		return fmt.Errorf("fetch %s: status %d: %w", url, status, ErrMalformed)
	}
}

// isChallengePage sniffs a known bot-challenge interstitial: a short
// body carrying a recognizable challenge marker.
func isChallengePage(body string) bool {
	if len(body) >= challengeBodyMaxLen {
		return false
	}
	lower := strings.ToLower(body)
	return (strings.Contains(lower, "cloudflare") && strings.Contains(lower, "ray id:")) ||
		strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "verify you are human")
}

// isTransient classifies retryable errors: network failures and
// transient HTTP statuses. Typed permanent failures are not retried.
func isTransient(err error) bool {
	if errors.Is(err, ErrBlocked) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
		return false
	}
	return true
}

// isTimeout reports whether the error chain contains a deadline or
// timeout condition.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
