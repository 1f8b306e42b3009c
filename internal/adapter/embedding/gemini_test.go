package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathembed/config"
	"pathembed/internal/domain"
)

func geminiServer(t *testing.T, handler func(w http.ResponseWriter, req batchEmbedRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:batchEmbedContents", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req batchEmbedRequest
		require.NoError(t, json.Unmarshal(body, &req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiEmbedBatch(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, req batchEmbedRequest) {
		require.Len(t, req.Requests, 2)
		assert.Equal(t, "models/text-embedding-004", req.Requests[0].Model)
		assert.Equal(t, "first", req.Requests[0].Content.Parts[0].Text)
		assert.Equal(t, "CLUSTERING", req.Requests[1].TaskType)
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`))
	})

	e, err := NewGeminiEmbedder("test-key", "models/text-embedding-004", GeminiOptions{BaseURL: srv.URL, TaskType: "CLUSTERING"})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, out)
	assert.Equal(t, "text-embedding-004", e.ModelName())
}

func TestGeminiAcceptsAny2xx(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, req batchEmbedRequest) {
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[1,2]}]}`))
	})

	e, err := NewGeminiEmbedder("test-key", "text-embedding-004", GeminiOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, out)
}

func TestGeminiErrorFieldInOKResponse(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, req batchEmbedRequest) {
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Request payload size exceeds the limit","status":"INVALID_ARGUMENT"}}`))
	})

	e, err := NewGeminiEmbedder("test-key", "text-embedding-004", GeminiOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Request payload size exceeds the limit", apiErr.Message)
	assert.False(t, domain.IsRetryable(err))
}

func TestGeminiNonOKStatus(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, req batchEmbedRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	})

	e, err := NewGeminiEmbedder("test-key", "text-embedding-004", GeminiOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Status)
	assert.True(t, domain.IsRetryable(err))
}

func TestGeminiNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder("k", "text-embedding-004", GeminiOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "<html>bad gateway</html>", te.Body)
}

func TestGeminiShortResponseIsReturnedAsIs(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, req batchEmbedRequest) {
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[1]}]}`))
	})

	e, err := NewGeminiEmbedder("test-key", "text-embedding-004", GeminiOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGeminiEmbedder("", "text-embedding-004", GeminiOptions{})
	assert.ErrorIs(t, err, domain.ErrNoAPIKey)
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(4)
	a, err := e.EmbedBatch(context.Background(), []string{"renal mass", "breast"})
	require.NoError(t, err)
	b, err := e.EmbedBatch(context.Background(), []string{"renal mass"})
	require.NoError(t, err)

	require.Len(t, a, 2)
	assert.Len(t, a[0], 4)
	assert.Equal(t, a[0], b[0])
	assert.NotEqual(t, a[0], a[1])
}

func TestFactory(t *testing.T) {
	cfg := config.DefaultConfig().Embedding

	cfg.Provider = "mock"
	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", e.ModelName())
	assert.Equal(t, 768, e.Dimension())

	cfg.Provider = "gemini"
	cfg.APIKeyEnv = "PATHEMBED_FACTORY_UNSET"
	t.Setenv("PATHEMBED_FACTORY_UNSET", "")
	_, err = New(cfg)
	assert.Error(t, err)

	t.Setenv("PATHEMBED_FACTORY_UNSET", "k")
	e, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &GeminiEmbedder{}, e)

	cfg.Provider = "nope"
	_, err = New(cfg)
	assert.Error(t, err)
}
