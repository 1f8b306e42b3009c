package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedBatch generates embeddings for the given texts in one request.
	// The result is positionally aligned with texts; a provider that gets
	// fewer vectors back returns a shorter slice or nil entries.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimension returns the embedding vector dimension, or 0 if unknown.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
