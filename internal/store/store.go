// Package store defines the persistence contract of the tracker and a typed
// repository on top of it. Backends only ever see opaque JSON documents
// addressed by table and key
package store

import (
	"context"
)

// Logical tables
const (
	TableUsers         = "users"
	TableStreaks       = "streaks"
	TableSolves        = "solves"
	TableWeekly        = "weekly"
	TableAnnouncements = "announcements"
	TableSettings      = "settings"
)

// Tables lists every table a backend must be able to hold
var Tables = []string{
	TableUsers,
	TableStreaks,
	TableSolves,
	TableWeekly,
	TableAnnouncements,
	TableSettings,
}

// Documents is a key/value document store partitioned into tables
//
// Get returns domain.ErrNotFound for a missing key. Replace swaps the whole
// content of a table; implementations must not expose a half-replaced table
type Documents interface {
	Get(ctx context.Context, table, key string) ([]byte, error)
	Put(ctx context.Context, table, key string, value []byte) error
	Delete(ctx context.Context, table, key string) error
	List(ctx context.Context, table string) (map[string][]byte, error)
	Replace(ctx context.Context, table string, docs map[string][]byte) error
	Close() error
}

// Pinger is implemented by backends that can report connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}
