package archive

import (
	"context"
	"strings"
)

// Config selects the archive backend. The first configured of Postgres, S3
// and Dir wins; with none set reports are kept in memory.
type Config struct {
	PostgresDSN string
	S3          S3Config
	Dir         string
	Cache       CacheConfig
}

// Open builds the configured store behind a read cache.
func Open(ctx context.Context, cfg Config) (*CachedStore, error) {
	var origin Store
	switch {
	case strings.TrimSpace(cfg.PostgresDSN) != "":
		pg, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		origin = pg
	case strings.TrimSpace(cfg.S3.Endpoint) != "":
		s3, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, err
		}
		origin = s3
	case strings.TrimSpace(cfg.Dir) != "":
		origin = NewDirStore(cfg.Dir)
	default:
		origin = NewMemoryStore()
	}
	return NewCachedStore(origin, cfg.Cache), nil
}
