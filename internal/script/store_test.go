package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/logging"
	"github.com/dshills/datakit/internal/persist"
	"github.com/dshills/datakit/internal/query"
)

const todoScript = `
return {
  name = "demo/todos",
  initial = { items = {}, filter = "all" },

  reducer = function(state, action)
    if action.type == "ADD_TODO" then
      local item = { title = action.title, done = false }
      return datakit.assign({}, state, { items = datakit.append(state.items, item) })
    elseif action.type == "SET_FILTER" then
      if state.filter == action.filter then
        return state
      end
      return datakit.assign({}, state, { filter = action.filter })
    end
    return state
  end,

  selectors = {
    count = function(state) return #state.items end,
    title = function(state, i)
      local item = state.items[i + 1]
      if item then return item.title end
      return nil
    end,
  },

  actions = {
    add = function(title) return { type = "ADD_TODO", title = title } end,
    setFilter = function(filter) return { type = "SET_FILTER", filter = filter } end,
    noop = function() return nil end,
    broken = function() return 42 end,
  },

  queries = {
    titles = "map(state.items, .title)",
  },

  persist = { "items" },
}
`

func loadTodos(t *testing.T) *Script {
	t.Helper()
	sc, err := Load("todos", todoScript, WithLogger(logging.NullLogger))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sc.Close() })
	return sc
}

func registerTodos(t *testing.T, opts ...data.Option) (*data.Registry, *Script) {
	t.Helper()
	opts = append([]data.Option{data.WithLogger(logging.NullLogger)}, opts...)
	r := data.NewRegistry(opts...)
	t.Cleanup(func() { r.Close() })
	sc := loadTodos(t)
	if err := sc.Register(r); err != nil {
		t.Fatal(err)
	}
	return r, sc
}

func call(t *testing.T, r *data.Registry, action string, args ...any) {
	t.Helper()
	acts, err := r.Dispatch("demo/todos")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := acts.Call(context.Background(), action, args...); err != nil {
		t.Fatalf("%s: %v", action, err)
	}
}

func get(t *testing.T, r *data.Registry, selector string, args ...any) any {
	t.Helper()
	sel, err := r.Select("demo/todos")
	if err != nil {
		t.Fatal(err)
	}
	v, err := sel.Call(selector, args...)
	if err != nil {
		t.Fatalf("%s: %v", selector, err)
	}
	return v
}

func TestScriptStore(t *testing.T) {
	r, sc := registerTodos(t)
	if sc.Name() != "demo/todos" {
		t.Errorf("Name() = %q", sc.Name())
	}

	if got := get(t, r, "count"); got != int64(0) {
		t.Errorf("initial count = %v", got)
	}

	call(t, r, "add", "write tests")
	call(t, r, "add", "ship")

	if got := get(t, r, "count"); got != int64(2) {
		t.Errorf("count = %v, want 2", got)
	}
	if got := get(t, r, "title", 1); got != "ship" {
		t.Errorf("title(1) = %v, want ship", got)
	}
	if got := get(t, r, "title", 5); got != nil {
		t.Errorf("title(5) = %v, want nil", got)
	}
	if diff := cmp.Diff([]any{"write tests", "ship"}, get(t, r, "titles")); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}

	sel, _ := r.Select("demo/todos")
	state := sel.State().(map[string]any)
	if state["filter"] != "all" {
		t.Errorf("filter = %v", state["filter"])
	}
}

func TestScriptUnchangedStateDoesNotNotify(t *testing.T) {
	r, _ := registerTodos(t)
	sel, _ := r.Select("demo/todos")
	before := sel.State()

	calls := 0
	r.Subscribe(func() { calls++ })

	call(t, r, "setFilter", "all")
	call(t, r, "noop")
	if calls != 0 {
		t.Errorf("listener called %d times for unchanged state", calls)
	}
	if !data.Identical(before, sel.State()) {
		t.Error("state replaced although the reducer returned it unchanged")
	}

	call(t, r, "setFilter", "done")
	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
}

func TestScriptActionErrors(t *testing.T) {
	r, _ := registerTodos(t)
	acts, _ := r.Dispatch("demo/todos")

	if _, err := acts.Call(context.Background(), "broken"); err == nil {
		t.Error("action returning a number should fail")
	}
}

func TestScriptConfig(t *testing.T) {
	sc := loadTodos(t)
	cfg := sc.Config()

	if diff := cmp.Diff(&data.PersistConfig{Keys: []string{"items"}}, cfg.Persist); diff != "" {
		t.Errorf("persist mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{"add", "setFilter", "noop", "broken"} {
		if cfg.Actions[name] == nil {
			t.Errorf("missing action %s", name)
		}
	}
	if len(cfg.Selectors) != 3 {
		t.Errorf("selectors = %d, want 3", len(cfg.Selectors))
	}
}

func TestScriptPersisted(t *testing.T) {
	iface := persist.NewInterface(persist.NewMemoryStorage(), persist.WithInterfaceLogger(logging.NullLogger))
	plugin := func() data.Option {
		return data.WithInterceptor(persist.NewPlugin(iface, persist.WithPluginLogger(logging.NullLogger)).Interceptor())
	}

	first, _ := registerTodos(t, plugin())
	call(t, first, "add", "remember me")
	call(t, first, "setFilter", "done")

	second, _ := registerTodos(t, plugin())
	if got := get(t, second, "title", 0); got != "remember me" {
		t.Errorf("persisted title = %v", got)
	}
	sel, _ := second.Select("demo/todos")
	if f := sel.State().(map[string]any)["filter"]; f != "all" {
		t.Errorf("filter = %v, want the unpersisted default", f)
	}
}

func TestInvalidScripts(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{name: "syntax", code: `return {`},
		{name: "not a table", code: `return 1`},
		{name: "no reducer", code: `return { name = "x" }`},
		{name: "selector not a function", code: `return { reducer = function(s) return s end, selectors = { a = 1 } }`},
		{name: "bad query", code: `return { reducer = function(s) return s end, queries = { q = "1 +" } }`},
		{name: "runtime error", code: `error("boom")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("x", tt.code, WithLogger(logging.NullLogger))
			if !errors.Is(err, ErrInvalidScript) {
				t.Errorf("err = %v, want ErrInvalidScript", err)
			}
		})
	}

	_, err := Load("x", `return { reducer = function(s) return s end, queries = { q = "1 +" } }`, WithLogger(logging.NullLogger))
	if !errors.Is(err, query.ErrCompile) {
		t.Errorf("bad query err = %v, want ErrCompile", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.lua")
	code := `return {
  initial = 0,
  reducer = function(n, a) if a.type == "INC" then return n + 1 end return n end,
  actions = { inc = function() return { type = "INC" } end },
  selectors = { get = function(n) return n end },
  persist = true,
}`
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadFile(path, WithLogger(logging.NullLogger))
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	if sc.Name() != "counter" || sc.Path() != path {
		t.Errorf("Name() = %q, Path() = %q", sc.Name(), sc.Path())
	}
	if sc.Config().Persist == nil || len(sc.Config().Persist.Keys) != 0 {
		t.Errorf("persist = true should persist the whole state, got %+v", sc.Config().Persist)
	}

	r := data.NewRegistry(data.WithLogger(logging.NullLogger))
	defer r.Close()
	if err := sc.Register(r); err != nil {
		t.Fatal(err)
	}
	acts, _ := r.Dispatch("counter")
	acts.Call(context.Background(), "inc")
	sel, _ := r.Select("counter")
	if got, err := sel.Call("get"); err != nil || got != int64(1) {
		t.Errorf("get = %v, %v, want 1", got, err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.lua")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestScriptSelectorTimeout(t *testing.T) {
	sc, err := Load("slow", `return {
  initial = 0,
  reducer = function(s) return s end,
  selectors = { spin = function() while true do end end },
}`, WithLogger(logging.NullLogger), WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	r := data.NewRegistry(data.WithLogger(logging.NullLogger))
	defer r.Close()
	if err := sc.Register(r); err != nil {
		t.Fatal(err)
	}
	sel, _ := r.Select("slow")
	if _, err := sel.Call("spin"); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestScriptSelectorMutationIsDiscarded(t *testing.T) {
	sc, err := Load("tally", `return {
  initial = { count = 3 },
  reducer = function(state, action)
    if action.type == "INC" then
      return datakit.assign({}, state, { count = state.count + 1 })
    end
    if action.type == "TOUCH" then
      state.count = 50
    end
    return state
  end,
  selectors = {
    count = function(state) return state.count end,
    clobber = function(state) state.count = 99 return state.count end,
  },
  actions = {
    inc = function() return { type = "INC" } end,
    touch = function() return { type = "TOUCH" } end,
  },
}`, WithLogger(logging.NullLogger))
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	r := data.NewRegistry(data.WithLogger(logging.NullLogger))
	defer r.Close()
	if err := sc.Register(r); err != nil {
		t.Fatal(err)
	}
	sel, _ := r.Select("tally")
	acts, _ := r.Dispatch("tally")
	ctx := context.Background()

	if got, err := sel.Call("clobber"); err != nil || got != int64(99) {
		t.Fatalf("clobber = %v, %v", got, err)
	}
	if got, _ := sel.Call("count"); got != int64(3) {
		t.Errorf("count after selector mutation = %v, want 3", got)
	}

	if _, err := acts.Call(ctx, "inc"); err != nil {
		t.Fatal(err)
	}
	if got, _ := sel.Call("count"); got != int64(4) {
		t.Errorf("count after inc = %v, want 4", got)
	}

	if _, err := acts.Call(ctx, "touch"); err != nil {
		t.Fatal(err)
	}
	if _, err := acts.Call(ctx, "inc"); err != nil {
		t.Fatal(err)
	}
	if got, _ := sel.Call("count"); got != int64(5) {
		t.Errorf("count after in-place reducer mutation and inc = %v, want 5", got)
	}
}
