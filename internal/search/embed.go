package search

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIEmbedder implements Embedder using the OpenAI embeddings API.
// Safe for concurrent use.
type OpenAIEmbedder struct {
	// api is the OpenAI client.
	api *openai.Client
	// model is the embedding model name.
	model string
	// dimensions is the desired vector length (0 = model default).
	dimensions int
}

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// NewOpenAIEmbedder constructs an embedder sharing the vector-store
// provider's credential.
func NewOpenAIEmbedder(apiKey, model string, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{
		api:        &client,
		model:      model,
		dimensions: dimensions,
	}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search: embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("search: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return data out of order; place by index.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("search: embedding index %d out of range [0, %d)", d.Index, len(texts))
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
