package data

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/datakit/internal/logging"
)

// Registry holds named stores and routes selects, dispatches and
// subscriptions to them. Lookups that miss fall through to the parent
// registry, if any.
type Registry struct {
	id     string
	parent *Registry
	logger *logging.Logger

	mu           sync.RWMutex
	stores       map[string]*store
	interceptors []Interceptor
	cacheSize    int
	closed       bool

	listeners listenerSet

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithParent makes lookups that miss fall through to parent.
func WithParent(parent *Registry) Option {
	return func(r *Registry) {
		r.parent = parent
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSelectorCacheSize sets the default per-selector cache size. Zero or
// less disables memoization for selectors that do not set their own size.
func WithSelectorCacheSize(n int) Option {
	return func(r *Registry) {
		r.cacheSize = n
	}
}

// WithInterceptor adds an interceptor.
func WithInterceptor(ic Interceptor) Option {
	return func(r *Registry) {
		r.interceptors = append(r.interceptors, ic)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		id:        uuid.NewString(),
		stores:    make(map[string]*store),
		cacheSize: DefaultSelectorCacheSize,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry")
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// ID returns the registry's instance identifier.
func (r *Registry) ID() string {
	return r.id
}

// Parent returns the parent registry, or nil.
func (r *Registry) Parent() *Registry {
	return r.parent
}

// Use adds an interceptor. Register hooks apply to stores registered
// afterwards; the other hooks apply at once.
func (r *Registry) Use(ic Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interceptors = append(slices.Clip(r.interceptors), ic)
}

// RegisterStore registers a store under name and computes its initial
// state. A name already registered in this registry is an error; a name
// registered in the parent is shadowed.
func (r *Registry) RegisterStore(name string, cfg StoreConfig) error {
	if name == "" {
		return fmt.Errorf("%w: empty store name", ErrInvalidStoreConfig)
	}

	r.mu.RLock()
	closed := r.closed
	_, exists := r.stores[name]
	interceptors := r.interceptors
	r.mu.RUnlock()

	if closed {
		return ErrRegistryClosed
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStore, name)
	}

	if err := validateConfig(name, cfg); err != nil {
		return err
	}

	// Interceptors whose Register hook ran are told to forget the store if
	// registration fails afterwards.
	var applied []Interceptor
	rollback := func() {
		for _, ic := range slices.Backward(applied) {
			if ic.Unregister != nil {
				ic.Unregister(name)
			}
		}
	}

	for _, ic := range interceptors {
		if ic.Register == nil {
			continue
		}
		next, err := ic.Register(name, cfg)
		if err != nil {
			rollback()
			return fmt.Errorf("register %s: %s: %w", name, ic.Name, err)
		}
		cfg = next
		applied = append(applied, ic)
	}
	if err := validateConfig(name, cfg); err != nil {
		rollback()
		return err
	}

	s := newStore(r, name, cfg)
	if err := s.init(); err != nil {
		rollback()
		return err
	}

	r.mu.Lock()
	if _, exists := r.stores[name]; exists {
		r.mu.Unlock()
		rollback()
		return fmt.Errorf("%w: %s", ErrDuplicateStore, name)
	}
	r.stores[name] = s
	r.mu.Unlock()

	r.logger.Debug("store registered", "store", name,
		"selectors", len(cfg.Selectors), "actions", len(cfg.Actions))
	return nil
}

func validateConfig(name string, cfg StoreConfig) error {
	if cfg.Reducer == nil {
		return fmt.Errorf("%w: store %s has no reducer", ErrInvalidStoreConfig, name)
	}
	for k, sel := range cfg.Selectors {
		if !sel.valid() {
			return fmt.Errorf("%w: selector %s.%s has no function", ErrInvalidStoreConfig, name, k)
		}
	}
	return nil
}

// UnregisterStore removes a store from this registry.
func (r *Registry) UnregisterStore(name string) error {
	r.mu.Lock()
	s, ok := r.stores[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}
	delete(r.stores, name)
	interceptors := r.interceptors
	r.mu.Unlock()

	s.detach()
	for _, ic := range interceptors {
		if ic.Unregister != nil {
			ic.Unregister(name)
		}
	}
	r.logger.Debug("store unregistered", "store", name)
	return nil
}

// HasStore reports whether name resolves in this registry or its parent.
func (r *Registry) HasStore(name string) bool {
	_, err := r.lookup(name)
	return err == nil
}

// StoreNames returns the names registered in this registry, sorted.
func (r *Registry) StoreNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.stores))
}

func (r *Registry) lookup(name string) (*store, error) {
	r.mu.RLock()
	s, ok := r.stores[name]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if r.parent != nil {
		return r.parent.lookup(name)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
}

// Select returns the selectors of the named store.
func (r *Registry) Select(name string) (*Selectors, error) {
	s, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return &Selectors{store: s}, nil
}

// Dispatch returns the action creators of the named store.
func (r *Registry) Dispatch(name string) (*Actions, error) {
	s, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return &Actions{store: s}, nil
}

// Subscribe registers a listener called after any store changes, including
// stores of the parent registry. It returns an idempotent unsubscribe
// function.
func (r *Registry) Subscribe(l Listener) func() {
	unsub := r.listeners.add(l)
	if r.parent == nil {
		return unsub
	}
	unsubParent := r.parent.Subscribe(l)
	return func() {
		unsub()
		unsubParent()
	}
}

// SubscribeStore registers a listener called after the named store changes.
func (r *Registry) SubscribeStore(name string, l Listener) (func(), error) {
	s, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.listeners.add(l), nil
}

// batch collects the stores changed by one Batch call.
type batch struct {
	mu      sync.Mutex
	pending []*store
}

func (b *batch) add(s *store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.pending, s) {
		b.pending = append(b.pending, s)
	}
}

// batchKey carries a registry's open batch in a context.
type batchKey struct{ r *Registry }

func (r *Registry) batchFrom(ctx context.Context) *batch {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(batchKey{r}).(*batch)
	return b
}

// Batch runs fn, deferring notifications for dispatches made with the
// context passed to fn until it returns. Each store that changed notifies
// its listeners once; registry listeners are notified once if anything
// changed. Dispatches made with any other context notify as usual. Batches
// nest; only the outermost one notifies.
func (r *Registry) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.batchFrom(ctx) != nil {
		return fn(ctx)
	}

	b := &batch{}
	defer r.flush(b)
	return fn(context.WithValue(ctx, batchKey{r}, b))
}

func (r *Registry) flush(b *batch) {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, s := range pending {
		s.listeners.notify()
	}
	if len(pending) > 0 {
		r.listeners.notify()
	}
}

// notify tells listeners that s changed, or queues it when ctx carries an
// open batch.
func (r *Registry) notify(ctx context.Context, s *store) {
	if b := r.batchFrom(ctx); b != nil {
		b.add(s)
		return
	}
	s.listeners.notify()
	r.listeners.notify()
}

// goTracked runs fn in a goroutine that Close waits for. It reports false
// if the registry is closed.
func (r *Registry) goTracked(fn func(ctx context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
	return true
}

// Wait blocks until every running resolver has settled.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Context returns a context cancelled by Close.
func (r *Registry) Context() context.Context {
	return r.ctx
}

// Close cancels running resolvers and waits for them. Registered stores
// stay readable. Close is idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.listeners.clear()
	return nil
}

// IsNotFound reports whether err means a store, selector or action does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownStore) ||
		errors.Is(err, ErrUnknownSelector) ||
		errors.Is(err, ErrUnknownAction)
}
