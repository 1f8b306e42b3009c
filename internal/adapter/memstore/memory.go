package memstore

import (
	"sync"

	"pathembed/internal/domain"
)

// Cache is an in-memory embedding cache. ScanAll returns entries in the
// order their ids were first written.
type Cache struct {
	mu          sync.RWMutex
	entries     map[int]domain.CacheEntry
	order       []int
	fingerprint string
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[int]domain.CacheEntry),
	}
}

func (c *Cache) Put(id int, data domain.Embedding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(domain.CacheEntry{ID: id, Data: data})
	return nil
}

func (c *Cache) put(e domain.CacheEntry) {
	if _, exists := c.entries[e.ID]; !exists {
		c.order = append(c.order, e.ID)
	}
	e.Data = append(domain.Embedding(nil), e.Data...)
	c.entries[e.ID] = e
}

func (c *Cache) BulkPut(entries []domain.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.put(e)
	}
	return nil
}

func (c *Cache) Get(id int) (domain.CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok, nil
}

func (c *Cache) ScanAll() ([]domain.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := make([]domain.CacheEntry, 0, len(c.order))
	for _, id := range c.order {
		entries = append(entries, c.entries[id])
	}
	return entries, nil
}

func (c *Cache) Count() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]domain.CacheEntry)
	c.order = nil
	return nil
}

func (c *Cache) Fingerprint() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint, nil
}

func (c *Cache) SetFingerprint(fp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprint = fp
	return nil
}

func (c *Cache) Close() error {
	return nil
}
