package data

import (
	"fmt"
	"maps"
	"slices"
)

// Reducer computes the next state from the current state and an action.
// It must not mutate state; returning state itself signals "no change".
type Reducer func(state State, action Action) (State, error)

// callReducer runs a reducer, turning a panic into an error.
func callReducer(r Reducer, state State, action Action) (next State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			next, err = state, newPanicError(rec)
		}
	}()
	return r(state, action)
}

// CombineReducers builds a reducer for a map-shaped state where each key is
// owned by its own reducer. The previous map is returned unchanged when no
// sub-reducer produced a new value.
func CombineReducers(reducers map[string]Reducer) Reducer {
	keys := slices.Sorted(maps.Keys(reducers))

	return func(state State, action Action) (State, error) {
		prev, _ := state.(map[string]any)

		var next map[string]any
		for _, key := range keys {
			prevSub, had := prev[key]
			sub, err := reducers[key](prevSub, action)
			if err != nil {
				return state, fmt.Errorf("%s: %w", key, err)
			}
			if had && Identical(prevSub, sub) {
				continue
			}
			if next == nil {
				next = make(map[string]any, len(keys))
				maps.Copy(next, prev)
			}
			next[key] = sub
		}

		if next == nil {
			if prev == nil {
				return map[string]any{}, nil
			}
			return state, nil
		}
		return next, nil
	}
}
