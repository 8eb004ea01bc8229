// Package embedding turns article text into vectors and keeps the
// vector index in step with the content store.
package embedding

import (
	"context"
	"errors"
	"fmt"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "embed-english-v3.0"

// DefaultDims is the output dimension of DefaultModel.
const DefaultDims = 1024

// Provider abstracts a text-to-embedding generator. Implementations
// return one vector per input text, in input order.
type Provider interface {
	// EmbedDocuments embeds article text for storage in the index.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the provider's model identifier.
	ModelName() string
}

// CohereProvider implements Provider with the Cohere Embed v2 API.
type CohereProvider struct {
	client *cohereclient.Client
	model  string
}

// NewCohereProvider creates a provider for the given API key and model.
// An empty model selects DefaultModel.
func NewCohereProvider(apiKey, model string) (*CohereProvider, error) {
	if apiKey == "" {
		return nil, errors.New("cohere api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client := cohereclient.NewClient(cohereclient.WithToken(apiKey))

	return &CohereProvider{client: client, model: model}, nil
}

// ModelName returns the configured model identifier.
func (p *CohereProvider) ModelName() string { return p.model }

// EmbedDocuments embeds texts with the search_document input type.
func (p *CohereProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts, cohere.EmbedInputTypeSearchDocument)
}

// EmbedQuery embeds a single query with the search_query input type.
func (p *CohereProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, cohere.EmbedInputTypeSearchQuery)
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func (p *CohereProvider) embed(
	ctx context.Context,
	texts []string,
	inputType cohere.EmbedInputType,
) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := p.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          p.model,
		InputType:      inputType,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed request failed: %w", err)
	}

	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}

	floats := resp.Embeddings.Float
	if len(floats) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
			len(texts), len(floats))
	}

	out := make([][]float32, len(floats))
	for i, vec := range floats {
		converted := make([]float32, len(vec))
		for j, v := range vec {
			converted[j] = float32(v)
		}
		out[i] = converted
	}

	return out, nil
}
