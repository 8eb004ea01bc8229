// Package neardup collapses near-identical articles, such as the same
// press release republished across wire services, down to one
// representative per group.
package neardup

import (
	"context"
	"fmt"
	"sort"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/embedding"
	"github.com/dealharvest/dealharvest/internal/logger"
	"github.com/dealharvest/dealharvest/internal/vectorindex"
)

const (
	// DefaultThreshold is the cosine similarity above which two
	// articles count as near-duplicates.
	DefaultThreshold = 0.85

	// signatureChars is how much article body joins the title in the
	// similarity signature.
	signatureChars = 200

	// neighborK bounds the neighbor lookup per article. Duplicate
	// groups from a single run are small, so a fixed fan-out keeps the
	// pass near-linear.
	neighborK = 10
)

// Result reports one collapse pass.
type Result struct {
	// Kept holds the surviving representative articles, in input order.
	Kept []*domain.ArticleRecord
	// Removed maps each dropped URL to the URL kept in its place.
	Removed map[string]string
	// Groups counts duplicate groups that had more than one member.
	Groups int
}

// Collapser finds and merges near-duplicate articles using embedding
// similarity over a per-run in-memory index.
type Collapser struct {
	provider  embedding.Provider
	threshold float64
	log       logger.Interface
}

// NewCollapser creates a collapser. A threshold of zero or less selects
// DefaultThreshold.
func NewCollapser(provider embedding.Provider, threshold float64, log logger.Interface) *Collapser {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Collapser{
		provider:  provider,
		threshold: threshold,
		log:       log.WithComponent("neardup"),
	}
}

// Collapse groups articles whose signatures exceed the similarity
// threshold and keeps the longest-bodied member of each group. Each
// article is assigned to exactly one group.
func (c *Collapser) Collapse(ctx context.Context, articles []*domain.ArticleRecord) (*Result, error) {
	result := &Result{Removed: make(map[string]string)}
	if len(articles) == 0 {
		return result, nil
	}

	signatures := make([]string, len(articles))
	for i, article := range articles {
		signatures[i] = signature(article)
	}

	vectors, err := c.provider.EmbedDocuments(ctx, signatures)
	if err != nil {
		return nil, fmt.Errorf("failed to embed signatures: %w", err)
	}

	index := vectorindex.NewMemoryIndex()
	byURL := make(map[string]int, len(articles))
	docs := make([]vectorindex.Document, len(articles))
	for i, article := range articles {
		byURL[article.URL] = i
		docs[i] = vectorindex.Document{URL: article.URL, Embedding: vectors[i]}
	}
	if upsertErr := index.Upsert(ctx, docs); upsertErr != nil {
		return nil, fmt.Errorf("failed to build collapse index: %w", upsertErr)
	}

	groups := c.groupNeighbors(ctx, index, byURL, vectors, articles)

	c.pickRepresentatives(articles, groups, result)

	c.log.Info("near-duplicate collapse complete",
		"input", len(articles),
		"kept", len(result.Kept),
		"removed", len(result.Removed),
		"groups", result.Groups)

	return result, nil
}

// groupNeighbors unions articles whose similarity clears the threshold.
func (c *Collapser) groupNeighbors(
	ctx context.Context,
	index *vectorindex.MemoryIndex,
	byURL map[string]int,
	vectors [][]float32,
	articles []*domain.ArticleRecord,
) *unionFind {
	groups := newUnionFind(len(articles))

	for i := range articles {
		hits, err := index.Query(ctx, vectors[i], neighborK)
		if err != nil {
			// the index was built from these same vectors; a query
			// failure here means a programming error, not bad data
			c.log.Error("neighbor query failed", "url", articles[i].URL, "error", err.Error())
			continue
		}

		for _, hit := range hits {
			j := byURL[hit.URL]
			if j == i || hit.Score < c.threshold {
				continue
			}
			groups.union(i, j)
		}
	}

	return groups
}

// pickRepresentatives keeps the longest-bodied article per group,
// breaking ties toward the earlier input position.
func (c *Collapser) pickRepresentatives(
	articles []*domain.ArticleRecord,
	groups *unionFind,
	result *Result,
) {
	members := make(map[int][]int)
	for i := range articles {
		root := groups.find(i)
		members[root] = append(members[root], i)
	}

	keep := make(map[int]bool, len(members))
	for _, group := range members {
		sort.Ints(group)

		best := group[0]
		for _, i := range group[1:] {
			if len(articles[i].Content) > len(articles[best].Content) {
				best = i
			}
		}
		keep[best] = true

		if len(group) > 1 {
			result.Groups++
			for _, i := range group {
				if i != best {
					result.Removed[articles[i].URL] = articles[best].URL
				}
			}
		}
	}

	for i, article := range articles {
		if keep[i] {
			result.Kept = append(result.Kept, article)
		}
	}
}

// signature builds the text compared for near-duplication: the title
// plus the opening of the body, where wire-service copies agree even
// when trailing boilerplate differs.
func signature(article *domain.ArticleRecord) string {
	text := article.Title

	runes := []rune(article.Content)
	if len(runes) > signatureChars {
		runes = runes[:signatureChars]
	}
	if len(runes) > 0 {
		text += "\n" + string(runes)
	}

	return text
}

// unionFind is a disjoint-set over article positions.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}
