package entities

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dshills/datakit/internal/data"
)

func lookupRecord(state data.State, kind, name string, id any) map[string]any {
	records := asMap(asMap(state)["records"])
	return asMap(asMap(records[collectionKey(kind, name)])[recordKey(id)])
}

func lookupEdits(state data.State, kind, name string, id any) map[string]any {
	edits := asMap(asMap(state)["edits"])
	return asMap(asMap(edits[collectionKey(kind, name)])[recordKey(id)])
}

// editedRecord returns the record with its edits applied. A record without
// edits is returned as is.
func editedRecord(state data.State, kind, name string, id any) map[string]any {
	record := lookupRecord(state, kind, name, id)
	edits := lookupEdits(state, kind, name, id)
	if len(edits) == 0 {
		return record
	}
	out := make(map[string]any, len(record)+len(edits))
	maps.Copy(out, record)
	maps.Copy(out, edits)
	return out
}

func getEntityRecord(state data.State, args ...any) (any, error) {
	kind, name, id, err := recordArgs("getEntityRecord", args)
	if err != nil {
		return nil, err
	}
	if rec := lookupRecord(state, kind, name, id); rec != nil {
		return rec, nil
	}
	return nil, nil
}

func getEditedEntityRecord(state data.State, args ...any) (any, error) {
	kind, name, id, err := recordArgs("getEditedEntityRecord", args)
	if err != nil {
		return nil, err
	}
	if lookupRecord(state, kind, name, id) == nil {
		return nil, nil
	}
	return editedRecord(state, kind, name, id), nil
}

func getEntityRecordEdits(state data.State, args ...any) (any, error) {
	kind, name, id, err := recordArgs("getEntityRecordEdits", args)
	if err != nil {
		return nil, err
	}
	if edits := lookupEdits(state, kind, name, id); edits != nil {
		return edits, nil
	}
	return nil, nil
}

func hasEditsForEntityRecord(state data.State, args ...any) (any, error) {
	kind, name, id, err := recordArgs("hasEditsForEntityRecord", args)
	if err != nil {
		return nil, err
	}
	return len(lookupEdits(state, kind, name, id)) > 0, nil
}

// getEntityRecords lists a collection in the order records were first
// received. With a sort field the list is stably sorted by that field;
// records missing it sort last.
func getEntityRecords(state data.State, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("getEntityRecords: want kind and name, got %d arguments", len(args))
	}
	kind, _ := args[0].(string)
	name, _ := args[1].(string)
	var sortField string
	if len(args) > 2 {
		sortField, _ = args[2].(string)
	}

	s := asMap(state)
	ck := collectionKey(kind, name)
	order, _ := asMap(s["order"])[ck].([]string)
	coll := asMap(asMap(s["records"])[ck])

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		if rec := asMap(coll[key]); rec != nil {
			out = append(out, rec)
		}
	}
	if sortField != "" {
		slices.SortStableFunc(out, func(a, b map[string]any) int {
			return compareValues(a[sortField], b[sortField])
		})
	}

	list := make([]any, len(out))
	for i, rec := range out {
		list[i] = rec
	}
	return list, nil
}

// Value ranks used by compareValues. Values of different ranks order by
// rank alone.
const (
	rankNumber = iota
	rankString
	rankBool
	rankOther
	rankNil
)

func rankOf(v any) int {
	if v == nil {
		return rankNil
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case string:
		return rankString
	case bool:
		return rankBool
	default:
		return rankOther
	}
}

// compareValues orders numbers before strings before booleans before
// anything else, with nil last. Numbers compare numerically, strings and
// other values by their string form, false before true.
func compareValues(a, b any) int {
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case rankNil:
		return 0
	case rankNumber:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		return cmp.Compare(af, bf)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func hasUndo(state data.State, _ ...any) any {
	return asMap(asMap(state)["undo"])["hasUndo"] == true
}

func hasRedo(state data.State, _ ...any) any {
	return asMap(asMap(state)["undo"])["hasRedo"] == true
}
