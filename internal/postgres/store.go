package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
)

// Store keeps tracker documents in a single JSONB table
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a connection pool and verifies connectivity
func NewStore(cfg *config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	return Connect(context.Background(), cfg.ConnectionString(), cfg, logger)
}

// Connect opens a pool for dsn, applying pool limits from cfg when non-nil
func Connect(ctx context.Context, dsn string, cfg *config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	if cfg != nil {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
		poolConfig.MinConns = int32(cfg.MinConnections)
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			tbl VARCHAR(64) NOT NULL,
			key VARCHAR(128) NOT NULL,
			value JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tbl, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(tbl, updated_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := s.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	s.logger.Info("database migrations completed")
	return nil
}

// Get returns one document
func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM documents WHERE tbl = $1 AND key = $2`,
		table, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return value, nil
}

// Put upserts one document
func (s *Store) Put(ctx context.Context, table, key string, value []byte) error {
	query := `
		INSERT INTO documents (tbl, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (tbl, key)
		DO UPDATE SET value = $3, updated_at = $4
	`
	if _, err := s.pool.Exec(ctx, query, table, key, value, time.Now()); err != nil {
		return fmt.Errorf("putting document: %w", err)
	}
	return nil
}

// Delete removes one document
func (s *Store) Delete(ctx context.Context, table, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE tbl = $1 AND key = $2`, table, key); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// List returns every document of a table
func (s *Store) List(ctx context.Context, table string) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM documents WHERE tbl = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Replace swaps the content of a table inside one transaction
func (s *Store) Replace(ctx context.Context, table string, docs map[string][]byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE tbl = $1`, table); err != nil {
		return fmt.Errorf("clearing table: %w", err)
	}

	if len(docs) > 0 {
		batch := &pgx.Batch{}
		now := time.Now()
		for key, value := range docs {
			batch.Queue(
				`INSERT INTO documents (tbl, key, value, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
				table, key, value, now,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range docs {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("batch inserting documents: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("closing batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}
	return nil
}
