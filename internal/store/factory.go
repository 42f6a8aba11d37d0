package store

import (
	"fmt"
	"sync"
)

// Builder creates a store from config.
type Builder func(config Config) (Store, error)

// DefaultFactory maps store type names to builders.
type DefaultFactory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

var globalFactory = &DefaultFactory{builders: make(map[string]Builder)}

func init() {
	RegisterStoreType("sqlite", func(config Config) (Store, error) {
		return NewSQLiteStore(config)
	})
	RegisterStoreType("postgres", func(config Config) (Store, error) {
		return NewPostgresStore(config)
	})
	RegisterStoreType("postgresql", func(config Config) (Store, error) {
		return NewPostgresStore(config)
	})
	RegisterStoreType("memory", func(Config) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// RegisterStoreType registers a new store type with the global factory.
func RegisterStoreType(storeType string, builder Builder) {
	globalFactory.mu.Lock()
	defer globalFactory.mu.Unlock()
	globalFactory.builders[storeType] = builder
}

// CreateStore creates a store using the global factory.
func CreateStore(config Config) (Store, error) {
	globalFactory.mu.RLock()
	builder, ok := globalFactory.builders[config.Type]
	globalFactory.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported store type: %q (supported: %v)", config.Type, SupportedTypes())
	}
	return builder(config)
}

// SupportedTypes returns the registered store type names.
func SupportedTypes() []string {
	globalFactory.mu.RLock()
	defer globalFactory.mu.RUnlock()
	types := make([]string, 0, len(globalFactory.builders))
	for t := range globalFactory.builders {
		types = append(types, t)
	}
	return types
}
