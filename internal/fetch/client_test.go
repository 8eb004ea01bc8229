package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/fetch"
)

// fastConfig keeps retry delays negligible in tests.
func fastConfig() fetch.Config {
	return fetch.Config{RequestsPerSec: 1000, MaxRetries: 2}
}

// mockStealth implements fetch.StealthClient.
type mockStealth struct {
	body  string
	err   error
	calls atomic.Int32
}

func (m *mockStealth) Fetch(_ context.Context, _ string) (string, error) {
	m.calls.Add(1)
	return m.body, m.err
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>hello article</body></html>"))
	}))
	defer srv.Close()

	client := fetch.NewClient(fastConfig(), nil, nil)
	result, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, result.Body, "hello article")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestFetchNotFoundIsTypedAndNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := fetch.NewClient(fastConfig(), nil, nil)
	_, err := client.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, fetch.ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchForbiddenFallsBackToStealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	stealth := &mockStealth{body: "<html>stealth content</html>"}
	client := fetch.NewClient(fastConfig(), stealth, nil)

	result, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, result.Body, "stealth content")
	assert.Equal(t, int32(1), stealth.calls.Load())
}

func TestFetchBlockedWhenStealthAlsoFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	stealth := &mockStealth{err: fetch.ErrBlocked}
	client := fetch.NewClient(fastConfig(), stealth, nil)

	_, err := client.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, fetch.ErrBlocked)
}

func TestFetchBlockedWithoutStealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := fetch.NewClient(fastConfig(), nil, nil)
	_, err := client.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, fetch.ErrBlocked)
}

func TestFetchChallengePageTriggersStealth(t *testing.T) {
	t.Parallel()

	challenge := "<html>cloudflare Ray ID: abc checking your browser</html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(challenge))
	}))
	defer srv.Close()

	stealth := &mockStealth{body: "<html>real body</html>"}
	client := fetch.NewClient(fastConfig(), stealth, nil)

	result, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, result.Body, "real body")
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<html>recovered</html>"))
	}))
	defer srv.Close()

	client := fetch.NewClient(fastConfig(), nil, nil)
	result, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, result.Body, "recovered")
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchEmptyBodyIsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   "))
	}))
	defer srv.Close()

	client := fetch.NewClient(fastConfig(), nil, nil)
	_, err := client.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, fetch.ErrMalformed)
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	assert.True(t, fetch.IsRecoverable(fetch.ErrBlocked))
	assert.True(t, fetch.IsRecoverable(fetch.ErrTimeout))
	assert.True(t, fetch.IsRecoverable(fetch.ErrMalformed))
	assert.True(t, fetch.IsRecoverable(fetch.ErrNotFound))
	assert.False(t, fetch.IsRecoverable(errors.New("disk full")))
}

func TestFetchArticleExtractsText(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Big Deal Announced</title></head>
<body><article><h1>Big Deal Announced</h1>
<p>Acme Pharma announced today it will acquire Beta Bio for $1 billion in cash.
The transaction is expected to close in the second quarter pending approvals.</p>
<p>The acquisition expands the company's oncology portfolio significantly and
adds two late-stage clinical programs to the combined pipeline.</p>
</article></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	client := fetch.NewClient(fastConfig(), nil, nil)
	article, err := client.FetchArticle(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, article.Content, "Acme Pharma")
	assert.NotEmpty(t, article.Title)
}
