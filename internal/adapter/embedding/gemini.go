package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pathembed/internal/domain"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiEmbedder calls the batchEmbedContents endpoint of the Generative
// Language API. One call carries every text of a chunk.
type GeminiEmbedder struct {
	apiKey    string
	model     string
	baseURL   string
	taskType  string
	dimension int
	client    *http.Client
}

type GeminiOptions struct {
	BaseURL   string
	TaskType  string
	Dimension int
	Timeout   time.Duration
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embedContentRequest struct {
	Model                string  `json:"model"`
	Content              content `json:"content"`
	TaskType             string  `json:"taskType,omitempty"`
	OutputDimensionality int     `json:"outputDimensionality,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type batchEmbedResponse struct {
	Embeddings []contentEmbedding `json:"embeddings"`
	Error      *domain.APIError   `json:"error,omitempty"`
}

type contentEmbedding struct {
	Values []float64 `json:"values"`
}

func NewGeminiEmbedder(apiKey, model string, opts GeminiOptions) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrNoAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGeminiBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	return &GeminiEmbedder{
		apiKey:    apiKey,
		model:     strings.TrimPrefix(model, "models/"),
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		taskType:  opts.TaskType,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := batchEmbedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, text := range texts {
		reqBody.Requests[i] = embedContentRequest{
			Model:                "models/" + e.model,
			Content:              content{Parts: []part{{Text: text}}},
			TaskType:             e.taskType,
			OutputDimensionality: e.dimension,
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var embResp batchEmbedResponse
	decodeErr := json.Unmarshal(body, &embResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &domain.TransportError{URL: url, StatusCode: resp.StatusCode, Body: preview(body)}
		if decodeErr == nil && embResp.Error != nil {
			te.Body = ""
			te.Err = embResp.Error
		}
		return nil, te
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", preview(body), decodeErr)
	}

	if embResp.Error != nil {
		return nil, embResp.Error
	}

	embeddings := make([][]float64, len(embResp.Embeddings))
	for i, emb := range embResp.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
