package embedding

import (
	"context"
	"hash/fnv"
)

// MockEmbedder produces deterministic vectors without any network access.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 8
	}
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, e.dimension)

		for j, r := range []rune(text) {
			vec[j%e.dimension] += float64(r) / 1000.0
		}

		h := fnv.New32a()
		h.Write([]byte(text))
		vec[0] += float64(h.Sum32()%1000) / 1e6

		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
