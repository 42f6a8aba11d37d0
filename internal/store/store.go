package store

import (
	"context"
	"encoding/json"
)

// Store is a minimal namespaced key-value persistence interface. Values are
// opaque JSON documents; writes are whole-value replacements.
type Store interface {
	// Get returns the value stored under (namespace, key), or def when no
	// value has been written yet.
	Get(ctx context.Context, namespace, key string, def json.RawMessage) (json.RawMessage, error)
	// Set replaces the value stored under (namespace, key).
	Set(ctx context.Context, namespace, key string, value json.RawMessage) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // sqlite, postgres, memory
	Path string `toml:"path" mapstructure:"path"` // sqlite file path (":memory:" when empty)
	DSN  string `toml:"dsn" mapstructure:"dsn"`   // postgres DSN
}
