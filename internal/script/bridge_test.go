package script

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	lua "github.com/yuin/gopher-lua"
)

func TestBridgeRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	in := map[string]any{
		"count": int64(3),
		"ratio": 0.5,
		"name":  "todo",
		"done":  true,
		"items": []any{"a", "b"},
		"meta":  map[string]any{"x": int64(1)},
		"none":  nil,
	}
	got := toGo(toLua(L, in))

	want := map[string]any{
		"count": int64(3),
		"ratio": 0.5,
		"name":  "todo",
		"done":  true,
		"items": []any{"a", "b"},
		"meta":  map[string]any{"x": int64(1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestToGoTables(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		code string
		want any
	}{
		{name: "array", code: `return {1, 2, 3}`, want: []any{int64(1), int64(2), int64(3)}},
		{name: "empty", code: `return {}`, want: map[string]any{}},
		{name: "sparse", code: `return {[1] = "a", [3] = "c"}`, want: map[string]any{"1": "a", "3": "c"}},
		{name: "mixed", code: `return {1, x = 2}`, want: map[string]any{"1": int64(1), "x": int64(2)}},
		{name: "float", code: `return 1.5`, want: 1.5},
		{name: "function", code: `return function() end`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := L.DoString(tt.code); err != nil {
				t.Fatal(err)
			}
			lv := L.Get(-1)
			L.Pop(1)
			if diff := cmp.Diff(tt.want, toGo(lv)); diff != "" {
				t.Errorf("toGo mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToGoCycle(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(`local t = { name = "root" }; t.self = t; return t`); err != nil {
		t.Fatal(err)
	}
	got := toGo(L.Get(-1)).(map[string]any)
	if got["name"] != "root" || got["self"] != nil {
		t.Errorf("cyclic table = %v", got)
	}
}

func TestToLuaStructsAndSlices(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	type point struct {
		X, Y   int
		hidden int
	}
	got := toGo(toLua(L, []point{{X: 1, Y: 2}}))
	want := []any{map[string]any{"X": int64(1), "Y": int64(2)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("struct slice mismatch (-want +got):\n%s", diff)
	}

	if got := toGo(toLua(L, []any{"a", nil, "c"})); cmp.Diff(map[string]any{"1": "a", "3": "c"}, got) != "" {
		t.Errorf("slice with nil hole = %v", got)
	}
}
