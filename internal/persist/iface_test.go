package persist

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/datakit/internal/logging"
)

func newTestInterface(t *testing.T, opts ...InterfaceOption) (*Interface, *MemoryStorage) {
	t.Helper()
	s := NewMemoryStorage()
	opts = append([]InterfaceOption{WithInterfaceLogger(logging.NullLogger)}, opts...)
	return NewInterface(s, opts...), s
}

func TestInterfaceGetEmpty(t *testing.T) {
	i, _ := newTestInterface(t)
	if got := i.Get(); len(got) != 0 {
		t.Errorf("Get() = %v, want empty", got)
	}
}

func TestInterfaceGetCurrent(t *testing.T) {
	i, s := newTestInterface(t, WithStorageKey("FOO"))
	s.SetItem("FOO", `{"test":{}}`)

	if diff := cmp.Diff(map[string]any{"test": map[string]any{}}, i.Get()); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
	if i.StorageKey() != "FOO" {
		t.Errorf("StorageKey() = %q", i.StorageKey())
	}
}

func TestInterfaceMalformedBlob(t *testing.T) {
	for _, raw := range []string{"not json", "[1,2]", `"str"`} {
		i, s := newTestInterface(t)
		s.SetItem(DefaultStorageKey, raw)
		if got := i.Get(); len(got) != 0 {
			t.Errorf("Get() for %q = %v, want empty", raw, got)
		}
		if err := i.Set("test", 1); err != nil {
			t.Fatal(err)
		}
		if v, _, _ := s.GetItem(DefaultStorageKey); v != `{"test":1}` {
			t.Errorf("blob after Set = %s", v)
		}
	}
}

func TestInterfaceSetMerges(t *testing.T) {
	i, s := newTestInterface(t)

	i.Set("test1", map[string]any{})
	if v, _, _ := s.GetItem(DefaultStorageKey); v != `{"test1":{}}` {
		t.Errorf("first blob = %s", v)
	}
	i.Set("test2", map[string]any{})
	if v, _, _ := s.GetItem(DefaultStorageKey); v != `{"test1":{},"test2":{}}` {
		t.Errorf("second blob = %s", v)
	}
	i.Set("test1", map[string]any{"x": true})
	if v, _, _ := s.GetItem(DefaultStorageKey); v != `{"test1":{"x":true},"test2":{}}` {
		t.Errorf("replaced blob = %s", v)
	}
}

func TestInterfaceEscapesPathKeys(t *testing.T) {
	i, _ := newTestInterface(t)

	if err := i.SetPath([]string{"core/edit.post", "a*b"}, "v"); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"core/edit.post": map[string]any{"a*b": "v"}}
	if diff := cmp.Diff(want, i.Get()); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
	if v, ok := i.GetPath("core/edit.post", "a*b"); !ok || v != "v" {
		t.Errorf("GetPath() = %v, %v", v, ok)
	}

	if err := i.DeletePath("core/edit.post", "a*b"); err != nil {
		t.Fatal(err)
	}
	if _, ok := i.GetPath("core/edit.post", "a*b"); ok {
		t.Error("DeletePath() left the value")
	}
}

func TestInterfaceLoadSave(t *testing.T) {
	i, _ := newTestInterface(t)
	ctx := context.Background()

	if _, ok, err := i.Load(ctx, "core"); ok || err != nil {
		t.Errorf("Load() of missing store = %v, %v", ok, err)
	}
	if err := i.Save(ctx, "core", map[string]any{"n": 3}, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	v, ok, err := i.Load(ctx, "core")
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if diff := cmp.Diff(map[string]any{"n": float64(3)}, v); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if err := i.Save(ctx, "nulled", nil, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := i.Load(ctx, "nulled"); !ok || v != nil {
		t.Errorf("explicit null Load() = %v, %v, want nil, true", v, ok)
	}
}

func TestInterfaceInvalidate(t *testing.T) {
	i, s := newTestInterface(t)
	i.Set("a", 1)

	s.SetItem(DefaultStorageKey, `{"a":2}`)
	if v, _ := i.GetPath("a"); v != float64(1) {
		t.Errorf("cached read = %v, want 1", v)
	}
	i.Invalidate()
	if v, _ := i.GetPath("a"); v != float64(2) {
		t.Errorf("after Invalidate = %v, want 2", v)
	}
}
