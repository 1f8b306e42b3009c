package store

import (
	"fmt"
	"path/filepath"

	"pathembed/config"
	"pathembed/internal/adapter/memstore"
	"pathembed/internal/port"
)

// Open creates the cache backend named in cfg. Durable backends live under
// dir/.pathembed unless cfg.Path is set.
func Open(cfg config.CacheConfig, dir string) (port.Cache, error) {
	if cfg.Backend == "memory" {
		return memstore.NewCache(), nil
	}

	path := cfg.Path
	if path == "" {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		path = config.CacheDBPath(dir)
		if cfg.Backend == "sqlite" {
			path = filepath.Join(filepath.Dir(path), "cache.sqlite")
		}
	}

	switch cfg.Backend {
	case "bolt", "":
		return NewBoltCache(path)
	case "sqlite":
		return NewSQLiteCache(path)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
