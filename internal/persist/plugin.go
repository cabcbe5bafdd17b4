package persist

import (
	"context"
	"maps"
	"sync"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/logging"
)

// ActionMarkNextChangeAsExpensive flags the next save of a store as
// expensive. It is consumed by the plugin and never reaches the reducer.
const ActionMarkNextChangeAsExpensive = "MARK_NEXT_CHANGE_AS_EXPENSIVE"

// MarkNextChangeAsExpensive is the action creator name added to every
// persisted store.
const MarkNextChangeAsExpensive = "markNextChangeAsExpensive"

// Plugin connects a Persistence to a registry.
type Plugin struct {
	persistence Persistence
	logger      *logging.Logger

	mu     sync.Mutex
	stores map[string]*tracked
}

// tracked is the save state of one persisted store. Its mutex serializes
// Load and Save calls for the store.
type tracked struct {
	mu        sync.Mutex
	keys      []string
	last      any
	primed    bool
	version   uint64
	expensive bool
}

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

// WithPluginLogger sets the logger.
func WithPluginLogger(l *logging.Logger) PluginOption {
	return func(p *Plugin) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlugin creates a plugin over p.
func NewPlugin(p Persistence, opts ...PluginOption) *Plugin {
	pl := &Plugin{
		persistence: p,
		logger:      logging.Default(),
		stores:      make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(pl)
	}
	pl.logger = pl.logger.WithComponent("persist")
	return pl
}

// Interceptor returns the registry hooks of the plugin.
func (pl *Plugin) Interceptor() data.Interceptor {
	return data.Interceptor{
		Name:       "persistence",
		Register:   pl.register,
		Dispatch:   pl.middleware,
		Committed:  pl.committed,
		Unregister: pl.unregister,
	}
}

// Persisted reports whether the named store is persisted.
func (pl *Plugin) Persisted(store string) bool {
	return pl.lookup(store) != nil
}

func (pl *Plugin) lookup(store string) *tracked {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.stores[store]
}

// register loads the persisted state and wraps the reducer so the first
// @@INIT merges it into the default state. The caller's config is not
// mutated.
func (pl *Plugin) register(name string, cfg data.StoreConfig) (data.StoreConfig, error) {
	if cfg.Persist == nil {
		return cfg, nil
	}

	t := &tracked{keys: append([]string(nil), cfg.Persist.Keys...)}

	t.mu.Lock()
	persisted, found, err := pl.persistence.Load(context.Background(), name)
	t.mu.Unlock()
	if err != nil {
		pl.logger.Warn("load persisted state", "store", name, "error", err)
		found = false
	}
	if found {
		persisted = subset(persisted, t.keys)
	}

	inner := cfg.Reducer
	initialized := false
	cfg.Reducer = func(state data.State, a data.Action) (data.State, error) {
		next, err := inner(state, a)
		if err != nil || initialized || a.Type != data.ActionInit {
			return next, err
		}
		initialized = true
		if !found {
			return next, nil
		}
		return mergeInitial(next, persisted), nil
	}

	actions := make(map[string]data.ActionCreator, len(cfg.Actions)+1)
	maps.Copy(actions, cfg.Actions)
	actions[MarkNextChangeAsExpensive] = data.ActionOf(ActionMarkNextChangeAsExpensive)
	cfg.Actions = actions

	pl.mu.Lock()
	pl.stores[name] = t
	pl.mu.Unlock()

	pl.logger.Debug("store persisted", "store", name, "keys", t.keys, "restored", found)
	return cfg, nil
}

func (pl *Plugin) middleware(next data.DispatchFunc) data.DispatchFunc {
	return func(ctx context.Context, store string, a data.Action) error {
		if a.Type != ActionMarkNextChangeAsExpensive {
			return next(ctx, store, a)
		}
		if t := pl.lookup(store); t != nil {
			t.mu.Lock()
			t.expensive = true
			t.mu.Unlock()
		}
		return nil
	}
}

// committed saves the persisted subset when it changed. Commits older than
// the last one seen are ignored.
func (pl *Plugin) committed(c data.Commit) {
	t := pl.lookup(c.Store)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c.Version <= t.version {
		return
	}
	t.version = c.Version

	if !t.primed {
		t.last = subset(c.Prev, t.keys)
		t.primed = true
	}
	next := subset(c.Next, t.keys)
	if sameSubset(t.last, next, t.keys) {
		return
	}
	t.last = next

	opts := SaveOptions{IsExpensive: t.expensive}
	t.expensive = false
	if err := pl.persistence.Save(context.Background(), c.Store, next, opts); err != nil {
		pl.logger.Warn("save persisted state", "store", c.Store, "error", err)
	}
}

func (pl *Plugin) unregister(name string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	delete(pl.stores, name)
}
