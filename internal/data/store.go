package data

import (
	"context"
	"sync"

	"github.com/dshills/datakit/internal/logging"
)

// StoreConfig describes a store at registration.
type StoreConfig struct {
	// Reducer is required.
	Reducer Reducer

	Actions   map[string]ActionCreator
	Selectors map[string]Selector
	Resolvers map[string]Resolver

	// Controls resolves CustomControls yielded by this store's routines.
	Controls map[string]ControlHandler

	// Persist opts the store into persistence. Nil means not persisted.
	Persist *PersistConfig
}

// PersistConfig selects what part of a store's state is persisted.
type PersistConfig struct {
	// Keys lists the top-level state keys to persist. Empty persists the
	// whole state.
	Keys []string
}

// store is a registered store.
type store struct {
	name     string
	registry *Registry
	logger   *logging.Logger

	mu      sync.RWMutex
	state   State
	version uint64

	reducer   Reducer
	actions   map[string]ActionCreator
	selectors map[string]*boundSelector
	resolvers map[string]Resolver
	controls  map[string]ControlHandler
	persist   *PersistConfig

	listeners listenerSet
	meta      resolutionMeta
}

func newStore(r *Registry, name string, cfg StoreConfig) *store {
	s := &store{
		name:      name,
		registry:  r,
		logger:    r.logger.WithField("store", name),
		reducer:   cfg.Reducer,
		actions:   make(map[string]ActionCreator, len(cfg.Actions)),
		selectors: make(map[string]*boundSelector, len(cfg.Selectors)),
		resolvers: make(map[string]Resolver, len(cfg.Resolvers)),
		controls:  make(map[string]ControlHandler, len(cfg.Controls)),
		persist:   cfg.Persist,
	}
	for k, v := range cfg.Actions {
		s.actions[k] = v
	}
	for k, v := range cfg.Resolvers {
		s.resolvers[k] = v
	}
	for k, v := range cfg.Controls {
		s.controls[k] = v
	}
	for k, def := range cfg.Selectors {
		b := &boundSelector{name: k, def: def}
		if !def.unmemoized {
			size := def.cacheSize
			if size <= 0 {
				size = r.cacheSize
			}
			if size > 0 {
				b.cache = newSelectorCache(size)
			}
		}
		s.selectors[k] = b
	}
	return s
}

// snapshot returns the current state and its version.
func (s *store) snapshot() (State, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.version
}

func (s *store) currentVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// init computes the initial state.
func (s *store) init() error {
	initial, err := callReducer(s.reducer, nil, Action{Type: ActionInit})
	if err != nil {
		return &ReducerError{Store: s.name, Action: Action{Type: ActionInit}, Err: err}
	}
	s.state = initial
	return nil
}

// reduce applies a to the state. Reducers run one at a time per store.
// Listeners are notified only when the reducer returned a new value.
func (s *store) reduce(ctx context.Context, a Action) error {
	s.mu.Lock()
	prev := s.state
	next, err := callReducer(s.reducer, prev, a)
	if err != nil {
		s.mu.Unlock()
		return &ReducerError{Store: s.name, Action: a, Err: err}
	}
	if Identical(prev, next) {
		s.mu.Unlock()
		return nil
	}
	s.state = next
	s.version++
	version := s.version
	s.mu.Unlock()

	s.registry.committed(Commit{
		Store:   s.name,
		Action:  a,
		Prev:    prev,
		Next:    next,
		Version: version,
		Persist: s.persist,
	})
	s.registry.notify(ctx, s)
	return nil
}

// detach bumps the version so cached results depending on the store go
// stale, and drops its listeners.
func (s *store) detach() {
	s.mu.Lock()
	s.version++
	s.mu.Unlock()
	s.listeners.clear()
}
