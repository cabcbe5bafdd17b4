package history

import (
	"reflect"
	"sort"
)

// Change is the before/after value of one field.
type Change struct {
	From any
	To   any
}

// Changes groups the field changes made to one entity.
type Changes struct {
	// ID identifies the edited entity. IDs are compared by shallow equality,
	// so a small map or struct of primitives works as an ID.
	ID any

	// Changes maps field name to its change.
	Changes map[string]Change
}

// Record is one undoable unit, possibly spanning several entities.
type Record []Changes

// Fields returns the changed field names in sorted order.
func (c Changes) Fields() []string {
	fields := make([]string, 0, len(c.Changes))
	for f := range c.Changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// IsEmpty reports whether the record has no effective change.
func (r Record) IsEmpty() bool {
	for _, c := range r {
		for _, ch := range c.Changes {
			if !shallowEqual(ch.From, ch.To) {
				return false
			}
		}
	}
	return true
}

// compact returns a copy of r without no-op field changes and without
// entries left empty by that.
func (r Record) compact() Record {
	var out Record
	for _, c := range r {
		kept := make(map[string]Change, len(c.Changes))
		for field, ch := range c.Changes {
			if shallowEqual(ch.From, ch.To) {
				continue
			}
			kept[field] = ch
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, Changes{ID: c.ID, Changes: kept})
	}
	return out
}

// merge folds changes into r. Entries with an equal ID are combined field by
// field, keeping the existing From and taking the incoming To.
func (r Record) merge(changes Changes) Record {
	out := make(Record, len(r), len(r)+1)
	copy(out, r)

	for i, existing := range out {
		if !shallowEqual(existing.ID, changes.ID) {
			continue
		}
		merged := make(map[string]Change, len(existing.Changes)+len(changes.Changes))
		for field, ch := range existing.Changes {
			merged[field] = ch
		}
		for field, ch := range changes.Changes {
			if prev, ok := merged[field]; ok {
				merged[field] = Change{From: prev.From, To: ch.To}
				continue
			}
			merged[field] = ch
		}
		out[i] = Changes{ID: existing.ID, Changes: merged}
		return out
	}

	cp := make(map[string]Change, len(changes.Changes))
	for field, ch := range changes.Changes {
		cp[field] = ch
	}
	return append(out, Changes{ID: changes.ID, Changes: cp})
}

// shallowEqual compares two values one level deep. Maps and slices are
// equal when they have the same length and their entries are identical;
// everything else falls back to ==, with uncomparable values never equal.
func shallowEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map:
		if va.Len() != vb.Len() {
			return false
		}
		if va.UnsafePointer() == vb.UnsafePointer() {
			return true
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(iter.Key())
			if !other.IsValid() || !identical(iter.Value(), other) {
				return false
			}
		}
		return true
	case reflect.Slice:
		if va.Len() != vb.Len() {
			return false
		}
		for i := 0; i < va.Len(); i++ {
			if !identical(va.Index(i), vb.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Func:
		return false
	}

	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return false
}

// identical compares two nested values by reference for containers and by
// value for everything else.
func identical(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}

	switch a.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return a.UnsafePointer() == b.UnsafePointer()
	case reflect.Slice:
		return a.Len() == b.Len() && a.UnsafePointer() == b.UnsafePointer()
	case reflect.Func:
		return false
	}

	if a.Comparable() && b.Comparable() {
		return a.Equal(b)
	}
	return false
}
