package neardup_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/neardup"
)

// vectorProvider maps known signature prefixes to fixed vectors so
// similarity between test articles is fully controlled.
type vectorProvider struct {
	vectors map[string][]float32
}

func (p *vectorProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		for prefix, vec := range p.vectors {
			if strings.HasPrefix(text, prefix) {
				out[i] = vec
				break
			}
		}
		if out[i] == nil {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (p *vectorProvider) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{0, 0, 1}, nil
}

func (p *vectorProvider) ModelName() string { return "fake-embed-v1" }

func rec(url, title, content string) *domain.ArticleRecord {
	return &domain.ArticleRecord{URL: url, Title: title, Content: content}
}

func TestCollapseKeepsLongestPerGroup(t *testing.T) {
	t.Parallel()

	provider := &vectorProvider{vectors: map[string][]float32{
		"Acme buys Beta": {1, 0, 0},
		"Gamma pact":     {0, 1, 0},
	}}
	collapser := neardup.NewCollapser(provider, 0, nil)

	articles := []*domain.ArticleRecord{
		rec("https://wire-a.com/1", "Acme buys Beta", "short copy"),
		rec("https://wire-b.com/2", "Acme buys Beta", "a much longer syndicated copy of the release"),
		rec("https://other.com/3", "Gamma pact", "unrelated article"),
	}

	result, err := collapser.Collapse(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, result.Kept, 2)
	assert.Equal(t, 1, result.Groups)

	assert.Equal(t, "https://wire-b.com/2", result.Kept[0].URL)
	assert.Equal(t, "https://other.com/3", result.Kept[1].URL)
	assert.Equal(t, map[string]string{
		"https://wire-a.com/1": "https://wire-b.com/2",
	}, result.Removed)
}

func TestCollapseBelowThresholdKeepsBoth(t *testing.T) {
	t.Parallel()

	provider := &vectorProvider{vectors: map[string][]float32{
		"First story":  {1, 0, 0},
		"Second story": {0.5, 0.86, 0},
	}}
	collapser := neardup.NewCollapser(provider, 0.85, nil)

	articles := []*domain.ArticleRecord{
		rec("https://a.com/1", "First story", "body"),
		rec("https://b.com/2", "Second story", "body"),
	}

	result, err := collapser.Collapse(context.Background(), articles)
	require.NoError(t, err)
	assert.Len(t, result.Kept, 2)
	assert.Empty(t, result.Removed)
	assert.Zero(t, result.Groups)
}

func TestCollapseTransitiveGroup(t *testing.T) {
	t.Parallel()

	// a~b and b~c but a and c are farther apart; one group, one survivor
	provider := &vectorProvider{vectors: map[string][]float32{
		"Copy A": {1, 0, 0},
		"Copy B": {0.96, 0.28, 0},
		"Copy C": {0.85, 0.53, 0},
	}}
	collapser := neardup.NewCollapser(provider, 0.95, nil)

	articles := []*domain.ArticleRecord{
		rec("https://a.com/1", "Copy A", "aa"),
		rec("https://b.com/2", "Copy B", "bbbb"),
		rec("https://c.com/3", "Copy C", "cc"),
	}

	result, err := collapser.Collapse(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, result.Kept, 1)
	assert.Equal(t, "https://b.com/2", result.Kept[0].URL)
	assert.Equal(t, 1, result.Groups)
	assert.Len(t, result.Removed, 2)
}

func TestCollapseTieBreaksOnInputOrder(t *testing.T) {
	t.Parallel()

	provider := &vectorProvider{vectors: map[string][]float32{
		"Same release": {1, 0, 0},
	}}
	collapser := neardup.NewCollapser(provider, 0, nil)

	articles := []*domain.ArticleRecord{
		rec("https://a.com/1", "Same release", "equal"),
		rec("https://b.com/2", "Same release", "equal"),
	}

	result, err := collapser.Collapse(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, result.Kept, 1)
	assert.Equal(t, "https://a.com/1", result.Kept[0].URL)
}

func TestCollapseEmptyInput(t *testing.T) {
	t.Parallel()

	collapser := neardup.NewCollapser(&vectorProvider{}, 0, nil)

	result, err := collapser.Collapse(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Kept)
	assert.Empty(t, result.Removed)
}
