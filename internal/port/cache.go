package port

import "pathembed/internal/domain"

// EmbeddingCache stores embeddings by record index across runs.
type EmbeddingCache interface {
	// Put upserts one entry without a content hash; the last write for an id wins.
	Put(id int, data domain.Embedding) error

	// BulkPut applies a sequence of puts.
	BulkPut(entries []domain.CacheEntry) error

	// Get returns the entry for id and whether it exists.
	Get(id int) (domain.CacheEntry, bool, error)

	// ScanAll returns every entry in the store's own iteration order.
	// Callers that need positional alignment sort by ID first.
	ScanAll() ([]domain.CacheEntry, error)

	Count() (int, error)

	Clear() error

	Close() error
}

// FingerprintStore is implemented by caches that remember which model and
// source produced their entries.
type FingerprintStore interface {
	Fingerprint() (string, error)
	SetFingerprint(fp string) error
}

// Cache is what the pipeline opens: an embedding cache that can tell
// whether its entries are still valid for the current settings.
type Cache interface {
	EmbeddingCache
	FingerprintStore
}
