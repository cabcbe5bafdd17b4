// Package persist saves selected store state across runs.
//
// A Storage holds string items by key. An Interface keeps every persisted
// store in one JSON blob under a single storage key and is the default
// Persistence. The Plugin wires a Persistence into a data.Registry: stores
// registered with a PersistConfig get their persisted state merged into the
// initial state, and each change to the persisted keys is saved.
package persist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnknownBackend is returned by NewStorage for an unsupported backend.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Storage is a key/value item store.
type Storage interface {
	// GetItem returns the item for key and whether it exists.
	GetItem(key string) (string, bool, error)

	// SetItem stores value under key.
	SetItem(key, value string) error

	// RemoveItem deletes key. Missing keys are not an error.
	RemoveItem(key string) error

	// Close releases the storage.
	Close() error
}

// Watcher is implemented by storages that can report items changed by
// another process.
type Watcher interface {
	Watch(ctx context.Context, onChange func(key string)) error
}

// Backend names accepted by NewStorage.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// NewStorage creates a Storage for backend rooted at dir.
//
// Supported backends:
//
//	"file"   - one JSON file per key in dir (default)
//	"sqlite" - SQLite database at dir/datakit.db
//	"memory" - in-memory, for tests
func NewStorage(backend, dir string) (Storage, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStorage(dir)
	case BackendSQLite:
		return NewSQLiteStorage(filepath.Join(dir, "datakit.db"))
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: file, sqlite, memory)", ErrUnknownBackend, backend)
	}
}
