package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// StealthClient is the fallback fetch path for sites that block the
// direct client. Implementations carry whatever machinery is needed to
// pass interactive challenges; the contract is the same as the direct
// path: body or error.
type StealthClient interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// defaultStealthTimeout allows the slower fallback path more time than
// the direct client.
const defaultStealthTimeout = 45 * time.Second

// browserHeaders mimics a desktop Chrome profile.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// browserUserAgent is the user agent presented by the stealth path.
const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserClient implements StealthClient with a cookie-carrying HTTP
// client and a full browser header profile. It handles sites whose
// blocking is header- or cookie-based; challenge pages it cannot pass
// surface as ErrBlocked at the caller.
type BrowserClient struct {
	client *http.Client
}

// NewBrowserClient creates a stealth client with a fresh cookie jar.
func NewBrowserClient(timeout time.Duration) (*BrowserClient, error) {
	if timeout <= 0 {
		timeout = defaultStealthTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("stealth client cookie jar: %w", err)
	}

	return &BrowserClient{
		client: &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

// Fetch performs a browser-profile GET and returns the body.
func (b *BrowserClient) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("stealth new request: %w", err)
	}

	req.Header.Set("User-Agent", browserUserAgent)
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stealth do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stealth fetch %s: status %d: %w", url, resp.StatusCode, ErrBlocked)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return "", fmt.Errorf("stealth read body: %w", err)
	}

	body := string(raw)
	if isChallengePage(body) {
		return "", fmt.Errorf("stealth fetch %s: challenge page: %w", url, ErrBlocked)
	}

	return body, nil
}
