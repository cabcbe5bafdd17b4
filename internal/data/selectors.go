package data

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// SelectorFunc derives a value from a store's state.
type SelectorFunc func(state State, args ...any) (any, error)

// RegistrySelectorFunc derives a value from a store's state and from other
// stores, read through sc.
type RegistrySelectorFunc func(sc *SelectContext, state State, args ...any) (any, error)

// Selector is a named read function of a store.
type Selector struct {
	fn         SelectorFunc
	registryFn RegistrySelectorFunc
	cacheSize  int
	unmemoized bool
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithCacheSize sets how many argument lists the selector remembers. It
// overrides the registry default.
func WithCacheSize(n int) SelectorOption {
	return func(s *Selector) {
		s.cacheSize = n
	}
}

// Unmemoized disables caching for the selector.
func Unmemoized() SelectorOption {
	return func(s *Selector) {
		s.unmemoized = true
	}
}

// NewSelector builds a selector over its own store's state.
func NewSelector(fn SelectorFunc, opts ...SelectorOption) Selector {
	s := Selector{fn: fn}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewRegistrySelector builds a selector that may read other stores.
func NewRegistrySelector(fn RegistrySelectorFunc, opts ...SelectorOption) Selector {
	s := Selector{registryFn: fn}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Pure builds a selector that cannot fail.
func Pure(fn func(state State, args ...any) any, opts ...SelectorOption) Selector {
	return NewSelector(func(state State, args ...any) (any, error) {
		return fn(state, args...), nil
	}, opts...)
}

func (s Selector) valid() bool {
	return s.fn != nil || s.registryFn != nil
}

// boundSelector is a selector attached to a store.
type boundSelector struct {
	name  string
	def   Selector
	cache *selectorCache
}

func (b *boundSelector) call(s *store, state State, args []any, deps *dependencyTracker) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value, err = nil, newPanicError(rec)
		}
	}()
	if b.def.registryFn != nil {
		sc := &SelectContext{registry: s.registry, tracker: deps}
		return b.def.registryFn(sc, state, args...)
	}
	return b.def.fn(state, args...)
}

// SelectContext gives a registry selector read access to other stores.
// Every store read through it becomes a dependency of the cached result.
type SelectContext struct {
	registry *Registry
	tracker  *dependencyTracker
}

// Select returns the selectors of the named store.
func (c *SelectContext) Select(storeName string) (*Selectors, error) {
	s, err := c.registry.lookup(storeName)
	if err != nil {
		return nil, err
	}
	return &Selectors{store: s, tracker: c.tracker}, nil
}

// Call is shorthand for Select(storeName) followed by Call.
func (c *SelectContext) Call(storeName, selector string, args ...any) (any, error) {
	sel, err := c.Select(storeName)
	if err != nil {
		return nil, err
	}
	return sel.Call(selector, args...)
}

// Selectors is the read handle of one store. Each call reads the store's
// freshest state.
type Selectors struct {
	store   *store
	tracker *dependencyTracker
}

// Store returns the store name.
func (s *Selectors) Store() string {
	return s.store.name
}

// State returns the store's current state. A registry selector reading
// state this way depends on the store.
func (s *Selectors) State() State {
	state, version := s.store.snapshot()
	s.tracker.add(s.store, version)
	return state
}

// Call runs the named selector with args.
func (s *Selectors) Call(name string, args ...any) (any, error) {
	return s.store.callSelector(name, args, s.tracker)
}

// Has reports whether the store defines the named selector.
func (s *Selectors) Has(name string) bool {
	_, ok := s.store.selectors[name]
	return ok
}

// Names returns the selector names in sorted order.
func (s *Selectors) Names() []string {
	return slices.Sorted(maps.Keys(s.store.selectors))
}

// Stats returns the cache counters of the named selector. It reports false
// for unknown or unmemoized selectors.
func (s *Selectors) Stats(name string) (CacheStats, bool) {
	b, ok := s.store.selectors[name]
	if !ok || b.cache == nil {
		return CacheStats{}, false
	}
	return b.cache.stats(), true
}

// ResolveSelect calls the named selector and, if it has a resolver that
// started for args, waits until the resolver settles before returning the
// fresh value. A failed resolution returns its error.
func (s *Selectors) ResolveSelect(ctx context.Context, name string, args ...any) (any, error) {
	value, err := s.Call(name, args...)
	if err != nil {
		return nil, err
	}

	res := s.store.meta.get(name, args)
	if res == nil {
		return value, nil
	}

	select {
	case <-res.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.err != nil {
		return nil, res.err
	}
	return s.Call(name, args...)
}

// HasStartedResolution reports whether the resolver for name and args has
// started.
func (s *Selectors) HasStartedResolution(name string, args ...any) bool {
	return s.store.meta.get(name, args) != nil
}

// HasFinishedResolution reports whether the resolver for name and args has
// settled, successfully or not.
func (s *Selectors) HasFinishedResolution(name string, args ...any) bool {
	res := s.store.meta.get(name, args)
	return res != nil && res.settled()
}

// IsResolving reports whether the resolver for name and args is running.
func (s *Selectors) IsResolving(name string, args ...any) bool {
	res := s.store.meta.get(name, args)
	return res != nil && !res.settled()
}

// ResolutionError returns the error of a failed resolution, or nil.
func (s *Selectors) ResolutionError(name string, args ...any) error {
	res := s.store.meta.get(name, args)
	if res == nil || !res.settled() {
		return nil
	}
	return res.err
}

// callSelector is the memoized selector path shared by every handle.
func (s *store) callSelector(name string, args []any, deps *dependencyTracker) (any, error) {
	b, ok := s.selectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownSelector, s.name, name)
	}

	s.fulfill(name, args)

	if b.cache != nil {
		if e, ok := b.cache.get(args); ok {
			deps.addAll(e.deps)
			return e.value, nil
		}
	}

	state, version := s.snapshot()
	local := &dependencyTracker{}
	local.add(s, version)

	value, err := b.call(s, state, args, local)
	if err != nil {
		return nil, &SelectorError{Store: s.name, Selector: name, Err: err}
	}

	if b.cache != nil {
		b.cache.put(&memoEntry{args: slices.Clone(args), deps: local.deps, value: value})
	}
	deps.addAll(local.deps)
	return value, nil
}
