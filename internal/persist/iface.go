package persist

import (
	"context"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/datakit/internal/logging"
)

// DefaultStorageKey is the storage item holding every persisted store.
const DefaultStorageKey = "DATAKIT_DATA"

// SaveOptions qualifies a save.
type SaveOptions struct {
	// IsExpensive hints that the write may be deferred or coalesced.
	IsExpensive bool
}

// Persistence loads and saves the persisted part of a store's state.
// Calls for the same store are never made concurrently.
type Persistence interface {
	// Load returns the persisted state of a store and whether any exists.
	Load(ctx context.Context, store string) (any, bool, error)

	// Save replaces the persisted state of a store. The value must not be
	// mutated.
	Save(ctx context.Context, store string, state any, opts SaveOptions) error
}

// Interface persists every store into one JSON object kept under a single
// storage key, one property per store.
type Interface struct {
	storage Storage
	key     string
	logger  *logging.Logger

	mu     sync.Mutex
	raw    string
	loaded bool
}

// InterfaceOption configures an Interface.
type InterfaceOption func(*Interface)

// WithStorageKey sets the storage item key.
func WithStorageKey(key string) InterfaceOption {
	return func(i *Interface) {
		if key != "" {
			i.key = key
		}
	}
}

// WithInterfaceLogger sets the logger.
func WithInterfaceLogger(l *logging.Logger) InterfaceOption {
	return func(i *Interface) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInterface creates an Interface over storage.
func NewInterface(storage Storage, opts ...InterfaceOption) *Interface {
	i := &Interface{
		storage: storage,
		key:     DefaultStorageKey,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.WithComponent("persist")
	return i
}

// StorageKey returns the storage item key.
func (i *Interface) StorageKey() string {
	return i.key
}

// rawLocked returns the cached blob, reading storage on first use. An
// unreadable or malformed blob reads as an empty object.
func (i *Interface) rawLocked() string {
	if i.loaded {
		return i.raw
	}
	raw, ok, err := i.storage.GetItem(i.key)
	switch {
	case err != nil:
		i.logger.Warn("read persisted data", "key", i.key, "error", err)
		raw = "{}"
	case !ok || !gjson.Valid(raw) || !gjson.Parse(raw).IsObject():
		raw = "{}"
	}
	i.raw, i.loaded = raw, true
	return raw
}

// Get returns the whole persisted object.
func (i *Interface) Get() map[string]any {
	i.mu.Lock()
	raw := i.rawLocked()
	i.mu.Unlock()

	m, _ := gjson.Parse(raw).Value().(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// GetPath returns the value at the nested path and whether it exists.
func (i *Interface) GetPath(path ...string) (any, bool) {
	i.mu.Lock()
	raw := i.rawLocked()
	i.mu.Unlock()

	res := gjson.Get(raw, joinPath(path))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// Set stores value as the persisted state of store, keeping the other
// stores' entries.
func (i *Interface) Set(store string, value any) error {
	return i.SetPath([]string{store}, value)
}

// SetPath stores value at the nested path.
func (i *Interface) SetPath(path []string, value any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	next, err := sjson.Set(i.rawLocked(), joinPath(path), value)
	if err != nil {
		return err
	}
	return i.writeLocked(next)
}

// DeletePath removes the value at the nested path.
func (i *Interface) DeletePath(path ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	next, err := sjson.Delete(i.rawLocked(), joinPath(path))
	if err != nil {
		return err
	}
	return i.writeLocked(next)
}

func (i *Interface) writeLocked(raw string) error {
	if err := i.storage.SetItem(i.key, raw); err != nil {
		return err
	}
	i.raw = raw
	return nil
}

// Invalidate drops the cached blob so the next read goes to storage.
func (i *Interface) Invalidate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.loaded = false
	i.raw = ""
}

// Watch invalidates the cache whenever another process rewrites the
// storage item. It is a no-op for storages that cannot watch.
func (i *Interface) Watch(ctx context.Context) error {
	w, ok := i.storage.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func(key string) {
		if key == i.key {
			i.Invalidate()
		}
	})
}

// Load implements Persistence.
func (i *Interface) Load(_ context.Context, store string) (any, bool, error) {
	v, ok := i.GetPath(store)
	return v, ok, nil
}

// Save implements Persistence.
func (i *Interface) Save(_ context.Context, store string, state any, _ SaveOptions) error {
	return i.Set(store, state)
}

// joinPath builds a gjson/sjson path from literal keys.
func joinPath(parts []string) string {
	escaped := make([]string, len(parts))
	for n, p := range parts {
		escaped[n] = escapeKey(p)
	}
	return strings.Join(escaped, ".")
}

func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', '!', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
