package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/postgres"
	"github.com/leettogether/leetstreak/internal/redis"
	"github.com/leettogether/leetstreak/internal/sqlite"
	"github.com/leettogether/leetstreak/internal/store/filestore"
)

var (
	_ Documents = (*Memory)(nil)
	_ Documents = (*filestore.Store)(nil)
	_ Documents = (*redis.Store)(nil)
	_ Documents = (*postgres.Store)(nil)
	_ Documents = (*sqlite.Store)(nil)
)

// Open connects the backend named by cfg.Store.Backend
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Documents, error) {
	logger = logger.With("backend", cfg.Store.Backend)

	switch cfg.Store.Backend {
	case config.BackendFile:
		logger.Info("opening file store", "dir", cfg.File.Dir)
		s, err := filestore.Open(cfg.File.Dir, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		s, err := redis.NewStore(&cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		s, err := postgres.NewStore(&cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case config.BackendSQLite:
		logger.Info("opening SQLite store", "path", cfg.SQLite.Path)
		s, err := sqlite.Open(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, cfg.Store.Backend)
	}
}
