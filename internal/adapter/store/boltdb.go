package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"pathembed/internal/domain"
)

var (
	bucketEmbeddings = []byte("embeddings")
	bucketMeta       = []byte("meta")
)

// BoltCache keeps embeddings in a single bbolt file. Keys are big-endian
// uint64 record indexes, so ForEach walks entries in index order.
type BoltCache struct {
	db *bbolt.DB
}

func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEmbeddings, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &BoltCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func idKey(id int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func (c *BoltCache) Put(id int, data domain.Embedding) error {
	return c.BulkPut([]domain.CacheEntry{{ID: id, Data: data}})
}

func (c *BoltCache) BulkPut(entries []domain.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for _, e := range entries {
			if e.ID < 0 {
				return fmt.Errorf("negative cache id %d", e.ID)
			}
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(idKey(e.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BoltCache) Get(id int) (domain.CacheEntry, bool, error) {
	if id < 0 {
		return domain.CacheEntry{}, false, nil
	}
	var (
		entry domain.CacheEntry
		found bool
	)
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get(idKey(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("failed to read cache entry %d: %w", id, err)
	}
	return entry, found, nil
}

func (c *BoltCache) ScanAll() ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			var e domain.CacheEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt cache entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

func (c *BoltCache) Count() (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes every embedding. Metadata survives.
func (c *BoltCache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEmbeddings); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEmbeddings)
		return err
	})
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}
