package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store keeps each table as a Redis hash of JSON documents
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewStore connects to Redis and returns a document store
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewStoreFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewStoreFromClient wraps an existing client
func NewStoreFromClient(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// tableKey returns the Redis key of a table's hash
func (s *Store) tableKey(table string) string {
	return fmt.Sprintf("%s:%s", s.prefix, table)
}

// updatedKey returns the Redis key holding per-document write times
func (s *Store) updatedKey(table string) string {
	return fmt.Sprintf("%s:%s:updated", s.prefix, table)
}

// Get returns one document
func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.tableKey(table), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return data, nil
}

// Put stores one document
func (s *Store) Put(ctx context.Context, table, key string, value []byte) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.tableKey(table), key, value)
	pipe.HSet(ctx, s.updatedKey(table), key, time.Now().UTC().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("putting document: %w", err)
	}
	return nil
}

// Delete removes one document
func (s *Store) Delete(ctx context.Context, table, key string) error {
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.tableKey(table), key)
	pipe.HDel(ctx, s.updatedKey(table), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// List returns every document of a table
func (s *Store) List(ctx context.Context, table string) (map[string][]byte, error) {
	result, err := s.client.HGetAll(ctx, s.tableKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	out := make(map[string][]byte, len(result))
	for k, v := range result {
		out[k] = []byte(v)
	}
	return out, nil
}

// Replace swaps the content of a table in one MULTI/EXEC block
func (s *Store) Replace(ctx context.Context, table string, docs map[string][]byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.tableKey(table), s.updatedKey(table))
	if len(docs) > 0 {
		values := make(map[string]any, len(docs))
		stamps := make(map[string]any, len(docs))
		for k, v := range docs {
			values[k] = v
			stamps[k] = now
		}
		pipe.HSet(ctx, s.tableKey(table), values)
		pipe.HSet(ctx, s.updatedKey(table), stamps)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing table: %w", err)
	}
	s.logger.Debug("replaced redis table", "table", table, "documents", len(docs))
	return nil
}

// UpdatedAt returns when a document was last written
func (s *Store) UpdatedAt(ctx context.Context, table, key string) (time.Time, error) {
	v, err := s.client.HGet(ctx, s.updatedKey(table), key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting update time: %w", err)
	}
	return time.Parse(time.RFC3339, v)
}
