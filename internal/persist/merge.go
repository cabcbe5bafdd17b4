package persist

import "github.com/dshills/datakit/internal/data"

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	if src == nil {
		return dst
	}

	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}

	return dst
}

// Clone creates a deep copy of a map tree.
func Clone(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for key, val := range src {
		dst[key] = cloneValue(val)
	}
	return dst
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return Clone(v)
	case []any:
		if v == nil {
			return nil
		}
		dst := make([]any, len(v))
		for i, item := range v {
			dst[i] = cloneValue(item)
		}
		return dst
	default:
		return v
	}
}

// mergeInitial combines a store's default state with its persisted state.
// Two maps are deep-merged with persisted values winning; otherwise the
// persisted value replaces the default.
func mergeInitial(initial, persisted any) any {
	initMap, initIsMap := initial.(map[string]any)
	persMap, persIsMap := persisted.(map[string]any)
	if initIsMap && persIsMap {
		return DeepMerge(Clone(initMap), persMap)
	}
	return persisted
}

// subset restricts state to keys. Empty keys, or a state that is not a
// map, select the whole state.
func subset(state any, keys []string) any {
	if len(keys) == 0 {
		return state
	}
	m, ok := state.(map[string]any)
	if !ok {
		return state
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

// sameSubset reports whether two subsets hold identical values for every
// key.
func sameSubset(a, b any, keys []string) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if len(keys) == 0 || !aok || !bok {
		return data.Identical(a, b)
	}
	for _, k := range keys {
		av, ahas := am[k]
		bv, bhas := bm[k]
		if ahas != bhas || !data.Identical(av, bv) {
			return false
		}
	}
	return true
}
