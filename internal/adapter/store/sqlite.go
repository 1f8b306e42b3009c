package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"pathembed/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id   INTEGER PRIMARY KEY,
	data TEXT NOT NULL,
	hash TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteCache stores embeddings in a SQLite table keyed by record index.
// data holds the JSON-encoded vector.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	c := &SQLiteCache{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) migrate() error {
	var version int
	err := c.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("cache created by newer version (v%d > v%d)", version, CurrentSchemaVersion)
	}
	if version == 1 {
		if _, err := c.db.Exec(`ALTER TABLE embeddings ADD COLUMN hash TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add hash column: %w", err)
		}
	}
	return c.setMeta("schema_version", fmt.Sprint(CurrentSchemaVersion))
}

func (c *SQLiteCache) setMeta(key, value string) error {
	_, err := c.db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (c *SQLiteCache) Put(id int, data domain.Embedding) error {
	return c.BulkPut([]domain.CacheEntry{{ID: id, Data: data}})
}

func (c *SQLiteCache) BulkPut(entries []domain.CacheEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`INSERT INTO embeddings (id, data, hash) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, hash = excluded.hash`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(e.ID, string(data), e.Hash); err != nil {
			return fmt.Errorf("failed to store entry %d: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func (c *SQLiteCache) Get(id int) (domain.CacheEntry, bool, error) {
	var data, hash string
	err := c.db.QueryRow(`SELECT data, hash FROM embeddings WHERE id = ?`, id).Scan(&data, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("failed to read cache entry %d: %w", id, err)
	}

	entry := domain.CacheEntry{ID: id, Hash: hash}
	if err := json.Unmarshal([]byte(data), &entry.Data); err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("corrupt cache entry %d: %w", id, err)
	}
	return entry, true, nil
}

// ScanAll returns entries in rowid order, which for an INTEGER PRIMARY KEY
// is the id itself.
func (c *SQLiteCache) ScanAll() ([]domain.CacheEntry, error) {
	rows, err := c.db.Query(`SELECT id, data, hash FROM embeddings ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache: %w", err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var (
			id         int
			data, hash string
		)
		if err := rows.Scan(&id, &data, &hash); err != nil {
			return nil, err
		}
		var emb domain.Embedding
		if err := json.Unmarshal([]byte(data), &emb); err != nil {
			return nil, fmt.Errorf("corrupt cache entry %d: %w", id, err)
		}
		entries = append(entries, domain.CacheEntry{ID: id, Data: emb, Hash: hash})
	}
	return entries, rows.Err()
}

func (c *SQLiteCache) Count() (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

func (c *SQLiteCache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM embeddings`)
	return err
}

func (c *SQLiteCache) Fingerprint() (string, error) {
	var fp string
	err := c.db.QueryRow(`SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return fp, err
}

func (c *SQLiteCache) SetFingerprint(fp string) error {
	return c.setMeta("fingerprint", fp)
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
