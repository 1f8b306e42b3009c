package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"pathembed/internal/port"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
// Version 2 adds the per-entry content hash.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyFingerprint   = []byte("fingerprint")
)

// SchemaInfo stores schema version and the settings fingerprint.
type SchemaInfo struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (c *BoltCache) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if data := b.Get(keySchemaVersion); data != nil {
			if err := json.Unmarshal(data, &info.Version); err != nil {
				return fmt.Errorf("corrupt schema version: %w", err)
			}
		}
		info.Fingerprint = string(b.Get(keyFingerprint))
		return nil
	})
	return &info, err
}

func (c *BoltCache) migrate() error {
	info, err := c.GetSchemaInfo()
	if err != nil {
		return err
	}
	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("cache created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}
	if info.Version == CurrentSchemaVersion {
		return nil
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
}

func (c *BoltCache) Fingerprint() (string, error) {
	info, err := c.GetSchemaInfo()
	if err != nil {
		return "", err
	}
	return info.Fingerprint, nil
}

func (c *BoltCache) SetFingerprint(fp string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyFingerprint, []byte(fp))
	})
}

// StaleResult describes the outcome of a fingerprint check.
type StaleResult struct {
	Stale  bool
	Stored string
	Reason string
}

// CheckFingerprint compares the stored fingerprint with fp. A cache without
// a fingerprint is stale only if it already holds entries, since nothing
// says which settings produced them.
func CheckFingerprint(c port.Cache, fp string) (*StaleResult, error) {
	stored, err := c.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}

	result := &StaleResult{Stored: stored}
	switch {
	case stored == fp:
	case stored == "":
		n, err := c.Count()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			result.Stale = true
			result.Reason = "cache has entries but no fingerprint"
		}
	default:
		result.Stale = true
		result.Reason = "model or source settings changed"
	}
	return result, nil
}

// Reset clears a stale cache and records the new fingerprint.
func Reset(c port.Cache, fp string) error {
	if err := c.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return c.SetFingerprint(fp)
}
