package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smallnest/paperrag/config"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
	"github.com/smallnest/paperrag/store/file"
	"github.com/smallnest/paperrag/store/memory"
	"github.com/smallnest/paperrag/store/postgres"
	"github.com/smallnest/paperrag/store/redis"
	"github.com/smallnest/paperrag/store/sqlite"
)

// OpenMetadataStore opens the backend named by cfg.MetadataBackend.
func OpenMetadataStore(ctx context.Context, cfg *config.Config) (store.MetadataStore, error) {
	switch cfg.MetadataBackend {
	case config.BackendFile:
		return file.New(cfg.MetadataFile)
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrStorageIO, err)
		}
		return sqlite.NewSqliteMetadataStore(sqlite.SqliteOptions{Path: cfg.SQLitePath})
	case config.BackendPostgres:
		return postgres.NewPostgresMetadataStore(ctx, postgres.PostgresOptions{ConnString: cfg.PostgresDSN})
	case config.BackendRedis:
		return redis.NewRedisMetadataStore(redis.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown metadata backend %q", rag.ErrInvalidConfig, cfg.MetadataBackend)
	}
}
