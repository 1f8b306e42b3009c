package cache

import (
	"context"

	"pathembed/internal/port"
)

// CachedEmbedder sends only texts the memo has not seen to the wrapped
// embedder, and only once per distinct text within a call.
type CachedEmbedder struct {
	embedder port.Embedder
	cache    *TextCache
}

func NewCachedEmbedder(embedder port.Embedder, cache *TextCache) *CachedEmbedder {
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
	}
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	model := e.embedder.ModelName()
	out := make([][]float64, len(texts))

	var (
		missTexts []string
		missPos   = make(map[string][]int)
	)
	for i, text := range texts {
		if vec, ok := e.cache.Get(model, text); ok {
			out[i] = vec
			continue
		}
		if _, seen := missPos[text]; !seen {
			missTexts = append(missTexts, text)
		}
		missPos[text] = append(missPos[text], i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	// A short answer leaves the unanswered positions nil for the caller to judge.
	for j, text := range missTexts {
		if j >= len(vectors) || vectors[j] == nil {
			continue
		}
		e.cache.Put(model, text, vectors[j])
		for _, pos := range missPos[text] {
			out[pos] = vectors[j]
		}
	}
	return out, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.embedder.ModelName()
}
