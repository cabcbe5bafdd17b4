// Package bindings provides the core/bindings store: named binding sources
// and the values bound to them. A value is addressed by its source and a
// set of named arguments, combined into one key with
// data.GenerateSourcePropertyKey.
//
// The core/post-meta source is not stored here: it reads and writes the
// "meta" field of post records held by the entities store.
package bindings

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/stores/entities"
)

// StoreName is the registry name of the bindings store.
const StoreName = "core/bindings"

// PostMetaSource binds to post meta fields.
const PostMetaSource = "core/post-meta"

// Action types.
const (
	ActionRegisterSource = "REGISTER_BINDING_SOURCE"
	ActionSetValue       = "SET_BINDING_VALUE"
)

// Config returns the store configuration.
func Config() data.StoreConfig {
	return data.StoreConfig{
		Reducer: data.CombineReducers(map[string]data.Reducer{
			"sources": sourcesReducer,
			"values":  valuesReducer,
		}),
		Actions: map[string]data.ActionCreator{
			"registerSource": registerSource,
			"setValue":       setValue,
			"setBoundValue":  setBoundValue,
		},
		Selectors: map[string]data.Selector{
			"getSource":     data.NewSelector(getSource),
			"getSources":    data.Pure(getSources),
			"getValue":      data.NewSelector(getValue),
			"getBoundValue": data.NewRegistrySelector(getBoundValue),
		},
	}
}

// Register registers the store on r.
func Register(r *data.Registry) error {
	return r.RegisterStore(StoreName, Config())
}

// KeyArgs converts binding arguments to key arguments. A map has no order,
// so its keys are sorted; a []data.KeyArg keeps its order.
func KeyArgs(v any) ([]data.KeyArg, error) {
	switch args := v.(type) {
	case nil:
		return nil, nil
	case []data.KeyArg:
		return args, nil
	case map[string]any:
		out := make([]data.KeyArg, 0, len(args))
		for _, k := range slices.Sorted(maps.Keys(args)) {
			out = append(out, data.KeyArg{Name: k, Value: args[k]})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("binding arguments must be an object or []KeyArg, got %T", v)
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func argValue(args []data.KeyArg, name string) any {
	for _, a := range args {
		if a.Name == name {
			return a.Value
		}
	}
	return nil
}

func sourceAndArgs(op string, args []any) (string, []data.KeyArg, error) {
	if len(args) < 1 {
		return "", nil, fmt.Errorf("%s: source is required", op)
	}
	source, ok := args[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("%s: source must be a string, got %T", op, args[0])
	}
	var raw any
	if len(args) > 1 {
		raw = args[1]
	}
	keyArgs, err := KeyArgs(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return source, keyArgs, nil
}

func sourcesReducer(state data.State, a data.Action) (data.State, error) {
	prev, _ := state.(map[string]any)
	if prev == nil {
		prev = map[string]any{}
	}
	if a.Type != ActionRegisterSource {
		return prev, nil
	}
	next := maps.Clone(prev)
	next[a.GetString("name")] = map[string]any{
		"name":  a.GetString("name"),
		"label": a.GetString("label"),
	}
	return next, nil
}

func valuesReducer(state data.State, a data.Action) (data.State, error) {
	prev, _ := state.(map[string]any)
	if prev == nil {
		prev = map[string]any{}
	}
	if a.Type != ActionSetValue {
		return prev, nil
	}
	key := a.GetString("key")
	if old, ok := prev[key]; ok && data.Identical(old, a.Get("value")) {
		return prev, nil
	}
	next := maps.Clone(prev)
	next[key] = a.Get("value")
	return next, nil
}

func registerSource(args ...any) (data.Result, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("registerSource: name is required")
	}
	name, ok := args[0].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("registerSource: name must be a non-empty string")
	}
	label := name
	if len(args) > 1 {
		if l, ok := args[1].(string); ok && l != "" {
			label = l
		}
	}
	return data.NewAction(ActionRegisterSource, "name", name, "label", label), nil
}

func setValue(args ...any) (data.Result, error) {
	source, keyArgs, err := sourceAndArgs("setValue", args)
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, fmt.Errorf("setValue: value is required")
	}
	key, err := data.GenerateSourcePropertyKey(source, keyArgs)
	if err != nil {
		return nil, fmt.Errorf("setValue: %w", err)
	}
	return data.NewAction(ActionSetValue, "key", key, "value", args[2]), nil
}

// setBoundValue writes through to the bound source. For core/post-meta the
// post's meta field is edited in the entities store.
func setBoundValue(args ...any) (data.Result, error) {
	source, keyArgs, err := sourceAndArgs("setBoundValue", args)
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, fmt.Errorf("setBoundValue: value is required")
	}
	value := args[2]

	if source != PostMetaSource {
		return setValue(args...)
	}
	return data.Thunk(func(ctx context.Context, api data.ThunkAPI) (any, error) {
		postType, postID, metaKey, err := postMetaArgs(keyArgs)
		if err != nil {
			return nil, err
		}
		sel, err := api.Registry.Select(entities.StoreName)
		if err != nil {
			return nil, err
		}
		rec, err := sel.Call("getEditedEntityRecord", "postType", postType, postID)
		if err != nil {
			return nil, err
		}
		record, _ := rec.(map[string]any)
		if record == nil {
			return nil, fmt.Errorf("post %s %v: %w", postType, postID, entities.ErrRecordNotFound)
		}

		meta, _ := record["meta"].(map[string]any)
		meta = maps.Clone(meta)
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta[metaKey] = value

		acts, err := api.Registry.Dispatch(entities.StoreName)
		if err != nil {
			return nil, err
		}
		return acts.Call(ctx, "editEntityRecord", "postType", postType, postID, map[string]any{"meta": meta})
	}), nil
}

func postMetaArgs(args []data.KeyArg) (postType string, postID any, key string, err error) {
	postType, _ = argValue(args, "postType").(string)
	postID = argValue(args, "postId")
	key, _ = argValue(args, "key").(string)
	if postType == "" || postID == nil || key == "" {
		return "", nil, "", fmt.Errorf("%s: postType, postId and key are required", PostMetaSource)
	}
	return postType, postID, key, nil
}

func getSource(state data.State, args ...any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("getSource: name is required")
	}
	name, _ := args[0].(string)
	sources, _ := asMap(state)["sources"].(map[string]any)
	if src, ok := sources[name]; ok {
		return src, nil
	}
	return nil, nil
}

func getSources(state data.State, _ ...any) any {
	sources, _ := asMap(state)["sources"].(map[string]any)
	return slices.Sorted(maps.Keys(sources))
}

func getValue(state data.State, args ...any) (any, error) {
	source, keyArgs, err := sourceAndArgs("getValue", args)
	if err != nil {
		return nil, err
	}
	key, err := data.GenerateSourcePropertyKey(source, keyArgs)
	if err != nil {
		return nil, err
	}
	values, _ := asMap(state)["values"].(map[string]any)
	return values[key], nil
}

// getBoundValue reads a value from its source. Post meta is read from the
// edited post, so unsaved edits are visible.
func getBoundValue(sc *data.SelectContext, state data.State, args ...any) (any, error) {
	source, keyArgs, err := sourceAndArgs("getBoundValue", args)
	if err != nil {
		return nil, err
	}
	if source != PostMetaSource {
		return getValue(state, args...)
	}

	postType, postID, key, err := postMetaArgs(keyArgs)
	if err != nil {
		return nil, err
	}
	rec, err := sc.Call(entities.StoreName, "getEditedEntityRecord", "postType", postType, postID)
	if err != nil {
		return nil, err
	}
	record, _ := rec.(map[string]any)
	meta, _ := record["meta"].(map[string]any)
	return meta[key], nil
}
