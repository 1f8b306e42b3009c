package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"pathembed/internal/domain"
)

// OpenAIEmbedder uses the OpenAI embeddings API, or any compatible server
// (Ollama, Jina, DeepSeek) when a base URL is given.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	baseURL   string
	dimension int
}

type OpenAIOptions struct {
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

func NewOpenAIEmbedder(apiKey, model string, opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrNoAPIKey
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// chunk retries are handled by the batch client
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(reqOpts...),
		model:     model,
		baseURL:   baseURL,
		dimension: opts.Dimension,
	}, nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &domain.TransportError{URL: e.baseURL, StatusCode: apiErr.StatusCode, Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransportError{URL: e.baseURL, Err: err}
	}

	// Place vectors by their reported index; positions the server skipped stay nil.
	embeddings := make([][]float64, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(embeddings) {
			return nil, fmt.Errorf("response index %d out of range for %d inputs", idx, len(texts))
		}
		embeddings[idx] = data.Embedding
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
