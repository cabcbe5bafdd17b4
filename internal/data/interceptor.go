package data

import "context"

// Commit describes a state change that was just applied.
type Commit struct {
	Store   string
	Action  Action
	Prev    State
	Next    State
	Version uint64

	// Persist is the store's persistence config, or nil.
	Persist *PersistConfig
}

// DispatchFunc applies an action to a named store.
type DispatchFunc func(ctx context.Context, store string, a Action) error

// Middleware wraps the dispatch of plain actions. It may rewrite, swallow
// or forward the action.
type Middleware func(next DispatchFunc) DispatchFunc

// Interceptor extends a registry. Every hook is optional.
type Interceptor struct {
	// Name identifies the interceptor in logs.
	Name string

	// Register may rewrite a store's config before it is registered, for
	// example to wrap the reducer or add actions.
	Register func(name string, cfg StoreConfig) (StoreConfig, error)

	// Dispatch wraps plain action dispatch.
	Dispatch Middleware

	// Committed runs after a reducer produced a new state and before
	// listeners are notified.
	Committed func(c Commit)

	// Unregister runs after a store is removed.
	Unregister func(name string)
}

func (r *Registry) middleware() []Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var mws []Middleware
	for _, ic := range r.interceptors {
		if ic.Dispatch != nil {
			mws = append(mws, ic.Dispatch)
		}
	}
	return mws
}

func (r *Registry) committed(c Commit) {
	r.mu.RLock()
	interceptors := r.interceptors
	r.mu.RUnlock()

	for _, ic := range interceptors {
		if ic.Committed != nil {
			ic.Committed(c)
		}
	}
}
