package store

import (
	"sort"

	"pathembed/internal/domain"
	"pathembed/internal/port"
)

// SortByID orders entries by record index in place. Backends differ in
// iteration order, so anything positional goes through here first.
func SortByID(entries []domain.CacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
}

// Ordered scans the cache and returns its entries sorted by ID.
func Ordered(c port.EmbeddingCache) ([]domain.CacheEntry, error) {
	entries, err := c.ScanAll()
	if err != nil {
		return nil, err
	}
	SortByID(entries)
	return entries, nil
}

// LookupResult holds cached embeddings aligned with the records passed to
// Lookup. Misses are nil.
type LookupResult struct {
	Embeddings []domain.Embedding
	Hits       int
	// Changed counts entries that exist under a record index but were
	// computed for different content.
	Changed int
}

// Lookup returns the cached embedding of each record. An entry is used only
// when its hash matches the record's ContentHash, so a source that gained,
// lost or edited rows never hands a record its neighbour's vector.
func Lookup(c port.EmbeddingCache, records []domain.Record) (*LookupResult, error) {
	res := &LookupResult{Embeddings: make([]domain.Embedding, len(records))}
	for i, rec := range records {
		entry, ok, err := c.Get(rec.Index)
		if err != nil {
			return nil, err
		}
		if !ok || entry.Data.Missing() {
			continue
		}
		if entry.Hash != rec.ContentHash() {
			res.Changed++
			continue
		}
		res.Embeddings[i] = entry.Data
		res.Hits++
	}
	return res, nil
}
