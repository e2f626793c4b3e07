package store

import (
	"context"
	"sync"

	"github.com/leettogether/leetstreak/internal/domain"
)

// Memory is an in-process Documents implementation
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte

	// FailPut, when set, is returned by Put for matching table/key pairs
	FailPut func(table, key string) error
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string][]byte)}
}

// Get implements Documents
func (m *Memory) Get(_ context.Context, table, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tables[table][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements Documents
func (m *Memory) Put(_ context.Context, table, key string, value []byte) error {
	if m.FailPut != nil {
		if err := m.FailPut(table, key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string][]byte)
		m.tables[table] = t
	}
	t[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Documents
func (m *Memory) Delete(_ context.Context, table, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], key)
	return nil
}

// List implements Documents
func (m *Memory) List(_ context.Context, table string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.tables[table]))
	for k, v := range m.tables[table] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Replace implements Documents
func (m *Memory) Replace(_ context.Context, table string, docs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := make(map[string][]byte, len(docs))
	for k, v := range docs {
		t[k] = append([]byte(nil), v...)
	}
	m.tables[table] = t
	return nil
}

// Close implements Documents
func (m *Memory) Close() error { return nil }
