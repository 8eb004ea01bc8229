package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/dealharvest/dealharvest/internal/logger"
)

// knnCandidateMultiplier widens the candidate pool the kNN search
// considers relative to k.
const knnCandidateMultiplier = 10

// urlScanPageSize bounds the page size when listing all document URLs.
const urlScanPageSize = 10_000

// ElasticIndex stores embeddings in an Elasticsearch dense_vector field
// and answers queries with approximate kNN search.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	dims   int
	log    logger.Interface
}

// NewElasticIndex creates a vector index backed by the given
// Elasticsearch client and index name.
func NewElasticIndex(
	client *elasticsearch.Client,
	index string,
	dims int,
	log logger.Interface,
) *ElasticIndex {
	if log == nil {
		log = logger.NewNoOp()
	}

	return &ElasticIndex{
		client: client,
		index:  index,
		dims:   dims,
		log:    log.WithComponent("vectorindex"),
	}
}

// EnsureIndex creates the index with a dense_vector mapping if it does
// not already exist.
func (e *ElasticIndex) EnsureIndex(ctx context.Context) error {
	exists, err := e.client.Indices.Exists(
		[]string{e.index},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer exists.Body.Close()

	if exists.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"url":            map[string]any{"type": "keyword"},
				"title":          map[string]any{"type": "text"},
				"snippet":        map[string]any{"type": "text"},
				"published_date": map[string]any{"type": "keyword"},
				"source":         map[string]any{"type": "keyword"},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       e.dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal index mapping: %w", err)
	}

	res, err := e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	e.log.Info("created vector index", "index", e.index, "dims", e.dims)

	return nil
}

// Upsert writes documents via the bulk API, using each URL as the
// document ID so re-embedding replaces in place.
func (e *ElasticIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		if len(doc.Embedding) != e.dims {
			return fmt.Errorf("%w: got %d, index has %d",
				ErrDimensionMismatch, len(doc.Embedding), e.dims)
		}

		action := map[string]any{"index": map[string]any{"_id": doc.URL}}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	return e.bulk(ctx, &buf)
}

// Delete removes documents by URL via the bulk API.
func (e *ElasticIndex) Delete(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, url := range urls {
		action := map[string]any{"delete": map[string]any{"_id": url}}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("failed to encode bulk action: %w", err)
		}
	}

	return e.bulk(ctx, &buf)
}

func (e *ElasticIndex) bulk(ctx context.Context, body *bytes.Buffer) error {
	res, err := e.client.Bulk(
		body,
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("failed to execute bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request error: %s", res.String())
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Error *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if decodeErr := json.NewDecoder(res.Body).Decode(&result); decodeErr != nil {
		return fmt.Errorf("failed to decode bulk response: %w", decodeErr)
	}

	if result.Errors {
		for _, item := range result.Items {
			for op, detail := range item {
				if detail.Error != nil {
					return fmt.Errorf("bulk %s failed: %s: %s",
						op, detail.Error.Type, detail.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk request reported errors")
	}

	return nil
}

// Query runs a kNN search and returns the k nearest documents.
// Elasticsearch reports cosine similarity as (1 + cos) / 2, so scores
// are mapped back to raw cosine before returning.
func (e *ElasticIndex) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != e.dims {
		return nil, fmt.Errorf("%w: got %d, index has %d",
			ErrDimensionMismatch, len(vector), e.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	query := map[string]any{
		"size": k,
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * knnCandidateMultiplier,
		},
		"_source": []string{"url", "title", "snippet", "published_date", "source"},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal knn query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute knn search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("knn search error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if decodeErr := json.NewDecoder(res.Body).Decode(&result); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode knn response: %w", decodeErr)
	}

	hits := make([]Hit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, Hit{
			Document: h.Source,
			Score:    2*h.Score - 1,
		})
	}

	return hits, nil
}

// URLs lists every document ID in the index, paging with search_after
// on the url sort key so corpora past the single-search result cap scan
// completely.
func (e *ElasticIndex) URLs(ctx context.Context) ([]string, error) {
	var urls []string
	var searchAfter []any

	for {
		query := map[string]any{
			"size":    urlScanPageSize,
			"query":   map[string]any{"match_all": map[string]any{}},
			"_source": false,
			"sort":    []any{map[string]any{"url": "asc"}},
		}
		if searchAfter != nil {
			query["search_after"] = searchAfter
		}

		body, err := json.Marshal(query)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal url scan query: %w", err)
		}

		res, err := e.client.Search(
			e.client.Search.WithContext(ctx),
			e.client.Search.WithIndex(e.index),
			e.client.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index urls: %w", err)
		}

		var result struct {
			Hits struct {
				Hits []struct {
					ID   string `json:"_id"`
					Sort []any  `json:"sort"`
				} `json:"hits"`
			} `json:"hits"`
		}

		if res.IsError() {
			msg := res.String()
			res.Body.Close()
			return nil, fmt.Errorf("url scan error: %s", msg)
		}

		decodeErr := json.NewDecoder(res.Body).Decode(&result)
		res.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode url scan response: %w", decodeErr)
		}

		for _, h := range result.Hits.Hits {
			urls = append(urls, h.ID)
		}

		if len(result.Hits.Hits) < urlScanPageSize {
			break
		}
		searchAfter = result.Hits.Hits[len(result.Hits.Hits)-1].Sort
	}

	return urls, nil
}

// Count returns the number of documents in the index.
func (e *ElasticIndex) Count(ctx context.Context) (int, error) {
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(e.index),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("count error: %s", res.String())
	}

	var result struct {
		Count int `json:"count"`
	}
	if decodeErr := json.NewDecoder(res.Body).Decode(&result); decodeErr != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", decodeErr)
	}

	return result.Count, nil
}
