package fetch

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter enforces a minimum inter-request delay per host so the
// pipeline respects target-site load regardless of worker concurrency.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter registry allowing rps requests per
// second per host.
func NewHostLimiter(rps float64) *HostLimiter {
	if rps <= 0 {
		rps = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    1,
	}
}

// Wait blocks until the host's limiter allows another request or the
// context is cancelled.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return h.limiterFor(rawURL).Wait(ctx)
}

// limiterFor returns the limiter for the URL's host, creating it on
// first use.
func (h *HostLimiter) limiterFor(rawURL string) *rate.Limiter {
	host := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = limiter
	}
	return limiter
}
