// Package preferences provides the core/preferences store: user preferences
// grouped by scope, with per-scope defaults. Only set values are persisted;
// defaults are registered again on every start.
package preferences

import (
	"context"
	"fmt"
	"maps"

	"github.com/dshills/datakit/internal/data"
)

// StoreName is the registry name of the preferences store.
const StoreName = "core/preferences"

// Action types.
const (
	ActionSetDefaults = "SET_PREFERENCE_DEFAULTS"
	ActionSetValue    = "SET_PREFERENCE_VALUE"
)

// Config returns the store configuration.
func Config() data.StoreConfig {
	return data.StoreConfig{
		Reducer: data.CombineReducers(map[string]data.Reducer{
			"defaults":    defaultsReducer,
			"preferences": preferencesReducer,
		}),
		Actions: map[string]data.ActionCreator{
			"setDefaults": setDefaults,
			"set":         set,
			"toggle":      toggle,
		},
		Selectors: map[string]data.Selector{
			"get":   data.NewSelector(get),
			"scope": data.NewSelector(scope),
		},
		Persist: &data.PersistConfig{Keys: []string{"preferences"}},
	}
}

// Register registers the store on r.
func Register(r *data.Registry) error {
	return r.RegisterStore(StoreName, Config())
}

func defaultsReducer(state data.State, a data.Action) (data.State, error) {
	prev, _ := state.(map[string]any)
	if prev == nil {
		prev = map[string]any{}
	}
	if a.Type != ActionSetDefaults {
		return prev, nil
	}

	scope := a.GetString("scope")
	defaults := a.GetMap("defaults")
	current, _ := prev[scope].(map[string]any)

	merged := make(map[string]any, len(current)+len(defaults))
	maps.Copy(merged, current)
	maps.Copy(merged, defaults)

	next := maps.Clone(prev)
	next[scope] = merged
	return next, nil
}

func preferencesReducer(state data.State, a data.Action) (data.State, error) {
	prev, _ := state.(map[string]any)
	if prev == nil {
		prev = map[string]any{}
	}
	if a.Type != ActionSetValue {
		return prev, nil
	}

	scope, name := a.GetString("scope"), a.GetString("name")
	current, _ := prev[scope].(map[string]any)
	if old, ok := current[name]; ok && data.Identical(old, a.Get("value")) {
		return prev, nil
	}

	values := maps.Clone(current)
	if values == nil {
		values = make(map[string]any, 1)
	}
	values[name] = a.Get("value")

	next := maps.Clone(prev)
	next[scope] = values
	return next, nil
}

func setDefaults(args ...any) (data.Result, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("setDefaults: want scope and defaults, got %d arguments", len(args))
	}
	scope, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("setDefaults: scope must be a string, got %T", args[0])
	}
	defaults, ok := args[1].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("setDefaults: defaults must be an object, got %T", args[1])
	}
	return data.NewAction(ActionSetDefaults, "scope", scope, "defaults", defaults), nil
}

func set(args ...any) (data.Result, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("set: want scope, name and value, got %d arguments", len(args))
	}
	scope, name, err := scopeAndName(args)
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}
	return data.NewAction(ActionSetValue, "scope", scope, "name", name, "value", args[2]), nil
}

// toggle flips a boolean preference, treating an unset one as false.
func toggle(args ...any) (data.Result, error) {
	scope, name, err := scopeAndName(args)
	if err != nil {
		return nil, fmt.Errorf("toggle: %w", err)
	}
	return data.Thunk(func(ctx context.Context, api data.ThunkAPI) (any, error) {
		current, err := api.Select.Call("get", scope, name)
		if err != nil {
			return nil, err
		}
		on, _ := current.(bool)
		_, err = api.Dispatch.Call(ctx, "set", scope, name, !on)
		return !on, err
	}), nil
}

func scopeAndName(args []any) (string, string, error) {
	if len(args) < 2 {
		return "", "", fmt.Errorf("want scope and name, got %d arguments", len(args))
	}
	scope, ok := args[0].(string)
	if !ok {
		return "", "", fmt.Errorf("scope must be a string, got %T", args[0])
	}
	name, ok := args[1].(string)
	if !ok {
		return "", "", fmt.Errorf("name must be a string, got %T", args[1])
	}
	return scope, name, nil
}

// get returns the set value of a preference, or its default.
func get(state data.State, args ...any) (any, error) {
	scope, name, err := scopeAndName(args)
	if err != nil {
		return nil, err
	}
	s, _ := state.(map[string]any)

	values, _ := s["preferences"].(map[string]any)
	scoped, _ := values[scope].(map[string]any)
	if v, ok := scoped[name]; ok {
		return v, nil
	}
	defaults, _ := s["defaults"].(map[string]any)
	d, _ := defaults[scope].(map[string]any)
	return d[name], nil
}

// scope returns every preference of a scope, set values over defaults.
func scope(state data.State, args ...any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("want scope, got no arguments")
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("scope must be a string, got %T", args[0])
	}
	s, _ := state.(map[string]any)
	defaults, _ := s["defaults"].(map[string]any)
	values, _ := s["preferences"].(map[string]any)

	out := make(map[string]any)
	if d, ok := defaults[name].(map[string]any); ok {
		maps.Copy(out, d)
	}
	if v, ok := values[name].(map[string]any); ok {
		maps.Copy(out, v)
	}
	return out, nil
}
