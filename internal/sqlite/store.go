// Package sqlite provides a single-file document store on SQLite
// in WAL mode, so the HTTP API can read while the scheduler writes
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/leettogether/leetstreak/internal/domain"
)

// Store wraps a SQLite connection holding the documents table
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path with WAL mode and a
// 5-second busy timeout
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close cleanly shuts down the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			tbl        TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tbl, key)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Get returns one document
func (s *Store) Get(ctx context.Context, table, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM documents WHERE tbl = ? AND key = ?`, table, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return []byte(value), nil
}

// Put upserts one document
func (s *Store) Put(ctx context.Context, table, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (tbl, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tbl, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		table, key, string(value), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// Delete removes one document
func (s *Store) Delete(ctx context.Context, table, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE tbl = ? AND key = ?`, table, key); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// List returns every document of a table
func (s *Store) List(ctx context.Context, table string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM documents WHERE tbl = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out[key] = []byte(value)
	}
	return out, rows.Err()
}

// Replace swaps the content of a table inside one transaction
func (s *Store) Replace(ctx context.Context, table string, docs map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE tbl = ?`, table); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}
	now := time.Now().Unix()
	for key, value := range docs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (tbl, key, value, updated_at) VALUES (?, ?, ?, ?)`,
			table, key, string(value), now,
		); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	return tx.Commit()
}
