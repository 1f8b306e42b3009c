package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMemoSize = 1000
	defaultMemoTTL  = time.Hour
)

// TextCache memoizes embeddings by text content for the lifetime of a
// process. Report corpora repeat boilerplate texts; each distinct text is
// requested once.
type TextCache struct {
	lru *expirable.LRU[string, []float64]
}

func NewTextCache(maxSize int, ttl time.Duration) *TextCache {
	if maxSize <= 0 {
		maxSize = defaultMemoSize
	}
	if ttl <= 0 {
		ttl = defaultMemoTTL
	}
	return &TextCache{
		lru: expirable.NewLRU[string, []float64](maxSize, nil, ttl),
	}
}

func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

func (c *TextCache) Get(model, text string) ([]float64, bool) {
	return c.lru.Get(cacheKey(model, text))
}

func (c *TextCache) Put(model, text string, vector []float64) {
	c.lru.Add(cacheKey(model, text), vector)
}

// Len counts entries, including expired ones not yet swept.
func (c *TextCache) Len() int {
	return c.lru.Len()
}
