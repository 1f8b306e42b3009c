package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathembed/internal/domain"
)

func TestOpenAIEmbedderPlacesByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "nomic-embed-text",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "nomic-embed-text", OpenAIOptions{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, out)
}

func TestOpenAIEmbedderMissingIndexStaysNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "m", OpenAIOptions{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Nil(t, out[1])
}

func TestOpenAIEmbedderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("sk-test", "m", OpenAIOptions{BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a"})
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.False(t, domain.IsRetryable(err))
}
