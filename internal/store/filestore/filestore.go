// Package filestore keeps each table as one JSON object on disk
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/leettogether/leetstreak/internal/domain"
)

var fileNames = map[string]string{
	"users":         "users.json",
	"streaks":       "streak.json",
	"solves":        "solves.json",
	"weekly":        "weekly.json",
	"announcements": "hourly_announcements.json",
	"settings":      "config.json",
}

// Store is a flat-file document store. All tables are cached in memory
// after first use and each write rewrites the table's file atomically
type Store struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	tables map[string]map[string]json.RawMessage
}

// Open prepares dir for use as a store
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		tables: make(map[string]map[string]json.RawMessage),
	}, nil
}

func (s *Store) path(table string) string {
	name, ok := fileNames[table]
	if !ok {
		name = table + ".json"
	}
	return filepath.Join(s.dir, name)
}

// table returns the cached table, reading it from disk on first use;
// callers hold s.mu
func (s *Store) table(name string) (map[string]json.RawMessage, error) {
	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	t := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path(name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", name, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", s.path(name), err)
		}
	}
	s.tables[name] = t
	return t, nil
}

// flush writes a table to a temp file and renames it over the old one;
// callers hold s.mu
func (s *Store) flush(name string, t map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// Get returns one document
func (s *Store) Get(_ context.Context, table, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	v, ok := t[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores one document and persists the table
func (s *Store) Put(_ context.Context, table, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("putting %s/%s: invalid json", table, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	next := clone(t)
	next[key] = append(json.RawMessage(nil), value...)
	if err := s.flush(table, next); err != nil {
		return err
	}
	s.tables[table] = next
	return nil
}

// Delete removes one document
func (s *Store) Delete(_ context.Context, table, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	if _, ok := t[key]; !ok {
		return nil
	}
	next := clone(t)
	delete(next, key)
	if err := s.flush(table, next); err != nil {
		return err
	}
	s.tables[table] = next
	return nil
}

// List returns every document of a table
func (s *Store) List(_ context.Context, table string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(t))
	for k, v := range t {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Replace swaps the content of a table
func (s *Store) Replace(_ context.Context, table string, docs map[string][]byte) error {
	next := make(map[string]json.RawMessage, len(docs))
	for k, v := range docs {
		if !json.Valid(v) {
			return fmt.Errorf("replacing %s: invalid json for %s", table, k)
		}
		next[k] = append(json.RawMessage(nil), v...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flush(table, next); err != nil {
		return err
	}
	s.tables[table] = next
	return nil
}

// Close is a no-op; every write is already durable
func (s *Store) Close() error {
	return nil
}

func clone(t map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	return out
}
