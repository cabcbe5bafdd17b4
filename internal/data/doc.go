// Package data implements the state-management kernel: a Registry of named
// stores, each owning one immutable state tree that only its reducer may
// replace.
//
// # Stores
//
// A store is registered with a reducer, action creators and selectors:
//
//	r := data.NewRegistry()
//	err := r.RegisterStore("counter", data.StoreConfig{
//	    Reducer: func(state data.State, a data.Action) (data.State, error) {
//	        n, _ := state.(int)
//	        if a.Type == "INC" {
//	            return n + 1, nil
//	        }
//	        return n, nil
//	    },
//	    Actions: map[string]data.ActionCreator{
//	        "inc": data.ActionOf("INC"),
//	    },
//	    Selectors: map[string]data.Selector{
//	        "getValue": data.Pure(func(s data.State, _ ...any) any { return s }),
//	    },
//	})
//
// Registration runs the reducer once with a nil state and the @@INIT action.
//
// # Reading and Writing
//
// Select returns selectors bound to the store; every call reads the freshest
// state. Dispatch returns bound action creators. An action creator returns a
// Result: a plain Action applied to the reducer, a Thunk run with access to
// the store's selectors and actions, or a Routine that yields Controls to an
// interpreter which resolves each one and resumes the routine with its value.
//
// # Memoization
//
// Selectors are memoized per store by state version and argument identity
// in a small LRU cache. Registry selectors read other stores only through a
// SelectContext, which records the stores they depend on so the cache entry
// is invalidated when any of them changes.
//
// # Notification
//
// Listeners run after the reducer has returned a new state, once per
// changing dispatch, or once per Batch for dispatches made with the
// batch's context. Listeners added during a
// notification are not called for it; listeners removed during a
// notification are not called again for it.
package data
