package entities

import (
	"maps"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dshills/datakit/internal/data"
)

// Action types.
const (
	ActionReceiveRecords = "RECEIVE_ENTITY_RECORDS"
	ActionEditRecord     = "EDIT_ENTITY_RECORD"
	ActionClearEdits     = "CLEAR_ENTITY_RECORD_EDITS"
	ActionHistoryChanged = "HISTORY_CHANGED"
)

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func receivedRecords(a data.Action) []map[string]any {
	recs, _ := a.Get("records").([]map[string]any)
	return recs
}

// recordsReducer keeps received records by collection and key.
func recordsReducer(state data.State, a data.Action) (data.State, error) {
	prev := asMap(state)
	if prev == nil {
		prev = map[string]any{}
	}
	if a.Type != ActionReceiveRecords {
		return prev, nil
	}
	recs := receivedRecords(a)
	if len(recs) == 0 {
		return prev, nil
	}

	ck := collectionKey(a.GetString("kind"), a.GetString("name"))
	coll := maps.Clone(asMap(prev[ck]))
	if coll == nil {
		coll = make(map[string]any, len(recs))
	}
	for _, rec := range recs {
		coll[recordKey(rec[KeyField])] = rec
	}

	next := maps.Clone(prev)
	next[ck] = coll
	return next, nil
}

// orderReducer keeps the keys of each collection in first-received order.
func orderReducer(state data.State, a data.Action) (data.State, error) {
	prev := asMap(state)
	if prev == nil {
		prev = map[string]any{}
	}
	if a.Type != ActionReceiveRecords {
		return prev, nil
	}

	ck := collectionKey(a.GetString("kind"), a.GetString("name"))
	keys, _ := prev[ck].([]string)

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	var added []string
	for _, rec := range receivedRecords(a) {
		k := recordKey(rec[KeyField])
		if !seen[k] {
			seen[k] = true
			added = append(added, k)
		}
	}
	if len(added) == 0 {
		return prev, nil
	}

	next := maps.Clone(prev)
	next[ck] = append(append(make([]string, 0, len(keys)+len(added)), keys...), added...)
	return next, nil
}

// editsReducer keeps unsaved edits by collection and key. An edit equal to
// the received value, or set to nil, is dropped.
func editsReducer(state data.State, a data.Action) (data.State, error) {
	prev := asMap(state)
	if prev == nil {
		prev = map[string]any{}
	}

	switch a.Type {
	case ActionEditRecord:
		ck := collectionKey(a.GetString("kind"), a.GetString("name"))
		key := recordKey(a.Get("id"))
		coll := asMap(prev[ck])

		merged := maps.Clone(asMap(coll[key]))
		if merged == nil {
			merged = make(map[string]any)
		}
		maps.Copy(merged, a.GetMap("edits"))
		merged = pruneEdits(merged, a.GetMap("record"))
		if cmp.Equal(merged, asMap(coll[key]), cmpopts.EquateEmpty()) {
			return prev, nil
		}
		return setEdits(prev, ck, key, merged), nil

	case ActionReceiveRecords:
		ck := collectionKey(a.GetString("kind"), a.GetString("name"))
		coll := asMap(prev[ck])
		if len(coll) == 0 {
			return prev, nil
		}
		next := prev
		for _, rec := range receivedRecords(a) {
			key := recordKey(rec[KeyField])
			edits := asMap(coll[key])
			if edits == nil {
				continue
			}
			pruned := pruneEdits(maps.Clone(edits), rec)
			if len(pruned) != len(edits) {
				next = setEdits(next, ck, key, pruned)
				coll = asMap(next[ck])
			}
		}
		return next, nil

	case ActionClearEdits:
		ck := collectionKey(a.GetString("kind"), a.GetString("name"))
		key := recordKey(a.Get("id"))
		if _, ok := asMap(prev[ck])[key]; !ok {
			return prev, nil
		}
		return setEdits(prev, ck, key, nil), nil
	}
	return prev, nil
}

// pruneEdits removes, in place, edits that are nil or equal to the
// record's value.
func pruneEdits(edits, record map[string]any) map[string]any {
	for field, v := range edits {
		if v == nil {
			delete(edits, field)
			continue
		}
		if rv, ok := record[field]; ok && cmp.Equal(v, rv) {
			delete(edits, field)
		}
	}
	return edits
}

// setEdits returns a copy of state with the edits of one record replaced.
// Empty edits remove the record's entry, and an emptied collection is
// removed too.
func setEdits(state map[string]any, ck, key string, edits map[string]any) map[string]any {
	coll := maps.Clone(asMap(state[ck]))
	if coll == nil {
		coll = make(map[string]any)
	}
	if len(edits) == 0 {
		delete(coll, key)
	} else {
		coll[key] = edits
	}

	next := maps.Clone(state)
	if len(coll) == 0 {
		delete(next, ck)
	} else {
		next[ck] = coll
	}
	return next
}

// undoReducer mirrors the availability of undo and redo steps so selectors
// and listeners observe history changes.
func undoReducer(state data.State, a data.Action) (data.State, error) {
	prev := asMap(state)
	if prev == nil {
		prev = map[string]any{"hasUndo": false, "hasRedo": false}
	}
	if a.Type != ActionHistoryChanged {
		return prev, nil
	}
	if prev["hasUndo"] == a.GetBool("hasUndo") && prev["hasRedo"] == a.GetBool("hasRedo") {
		return prev, nil
	}
	return map[string]any{"hasUndo": a.GetBool("hasUndo"), "hasRedo": a.GetBool("hasRedo")}, nil
}
