package script

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/query"
)

// Script is a store defined in Lua. The chunk returns a table:
//
//	return {
//	  name = "demo/todos",
//	  initial = { items = {} },
//	  reducer = function(state, action)
//	    if action.type == "ADD" then
//	      return datakit.assign({}, state, { items = datakit.append(state.items, action.title) })
//	    end
//	    return state
//	  end,
//	  selectors = { count = function(state) return #state.items end },
//	  actions = { add = function(title) return { type = "ADD", title = title } end },
//	  queries = { first = "state.items[0]" },
//	  persist = { "items" },
//	}
//
// Returning the state table unchanged from the reducer means no change, so
// reducers build a new table for a new state instead of mutating the one
// they receive. Selectors receive their own copy of the state; changes they
// make to it are discarded. persist = true persists the whole state.
type Script struct {
	name  string
	path  string
	state *State

	initial   any
	reducer   *lua.LFunction
	selectors map[string]*lua.LFunction
	actions   map[string]*lua.LFunction
	queries   map[string]*query.Query
	persist   *data.PersistConfig

	// Cache of the last state converted to Lua, so an unchanged state is
	// passed back as the same table.
	lastGo  any
	lastLua lua.LValue
}

// LoadFile loads a store script from path. The store name defaults to the
// file name without extension.
func LoadFile(path string, opts ...StateOption) (*Script, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sc, err := Load(name, string(code), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.path = path
	return sc, nil
}

// Load loads a store script from source. defaultName is used when the
// script does not set name.
func Load(defaultName, code string, opts ...StateOption) (*Script, error) {
	st := NewState(opts...)
	sc, err := parse(st, defaultName, code)
	if err != nil {
		st.Close()
		return nil, err
	}
	return sc, nil
}

func parse(st *State, defaultName, code string) (*Script, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ret, err := st.loadLocked(defaultName, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	def, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: script must return a table, got %s", ErrInvalidScript, ret.Type())
	}

	sc := &Script{
		name:      defaultName,
		state:     st,
		selectors: make(map[string]*lua.LFunction),
		actions:   make(map[string]*lua.LFunction),
		queries:   make(map[string]*query.Query),
	}
	if name, ok := def.RawGetString("name").(lua.LString); ok && name != "" {
		sc.name = string(name)
	}
	if sc.name == "" {
		return nil, fmt.Errorf("%w: store name is required", ErrInvalidScript)
	}

	sc.reducer, ok = def.RawGetString("reducer").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s: reducer function is required", ErrInvalidScript, sc.name)
	}
	sc.initial = toGo(def.RawGetString("initial"))

	if err := functions(def, "selectors", sc.selectors); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScript, sc.name, err)
	}
	if err := functions(def, "actions", sc.actions); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScript, sc.name, err)
	}

	if qt, ok := def.RawGetString("queries").(*lua.LTable); ok {
		var qerr error
		qt.ForEach(func(k, v lua.LValue) {
			src, ok := v.(lua.LString)
			if qerr != nil || !ok {
				if qerr == nil {
					qerr = fmt.Errorf("query %s must be a string", k)
				}
				return
			}
			q, err := query.Compile(string(src))
			if err != nil {
				qerr = fmt.Errorf("query %s: %w", k, err)
				return
			}
			sc.queries[k.String()] = q
		})
		if qerr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidScript, sc.name, qerr)
		}
	}

	switch p := def.RawGetString("persist").(type) {
	case lua.LBool:
		if p {
			sc.persist = &data.PersistConfig{}
		}
	case *lua.LTable:
		keys := []string{}
		p.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				keys = append(keys, string(s))
			}
		})
		sc.persist = &data.PersistConfig{Keys: keys}
	}
	return sc, nil
}

// functions collects the function fields of def[field] into dst.
func functions(def *lua.LTable, field string, dst map[string]*lua.LFunction) error {
	v := def.RawGetString(field)
	if v == lua.LNil {
		return nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return fmt.Errorf("%s must be a table", field)
	}
	var err error
	t.ForEach(func(k, v lua.LValue) {
		fn, ok := v.(*lua.LFunction)
		if !ok {
			if err == nil {
				err = fmt.Errorf("%s.%s must be a function", field, k)
			}
			return
		}
		dst[k.String()] = fn
	})
	return err
}

// Name returns the store name.
func (sc *Script) Name() string {
	return sc.name
}

// Path returns the file the script was loaded from, if any.
func (sc *Script) Path() string {
	return sc.path
}

// Close releases the script's Lua state.
func (sc *Script) Close() error {
	return sc.state.Close()
}

// Register registers the script's store on r.
func (sc *Script) Register(r *data.Registry) error {
	return r.RegisterStore(sc.name, sc.Config())
}

// Config returns the store configuration backed by the script.
func (sc *Script) Config() data.StoreConfig {
	cfg := data.StoreConfig{
		Reducer:   sc.reduce,
		Actions:   make(map[string]data.ActionCreator, len(sc.actions)),
		Selectors: make(map[string]data.Selector, len(sc.selectors)+len(sc.queries)),
		Persist:   sc.persist,
	}
	for name, fn := range sc.actions {
		cfg.Actions[name] = sc.actionCreator(name, fn)
	}
	for name, fn := range sc.selectors {
		cfg.Selectors[name] = data.NewSelector(sc.selector(fn))
	}
	for name, q := range sc.queries {
		cfg.Selectors[name] = q.Selector()
	}
	return cfg
}

// luaState returns the Lua value of state for the reducer, reusing the last
// conversion when state is unchanged. The caller holds the state mutex.
func (sc *Script) luaState(state any) lua.LValue {
	if sc.lastLua != nil && data.Identical(state, sc.lastGo) {
		return sc.lastLua
	}
	lv := toLua(sc.state.l, state)
	sc.lastGo, sc.lastLua = state, lv
	return lv
}

func (sc *Script) reduce(state data.State, a data.Action) (data.State, error) {
	if state == nil {
		state = sc.initial
	}

	sc.state.mu.Lock()
	defer sc.state.mu.Unlock()

	in := sc.luaState(state)
	out, err := sc.state.callLocked(sc.reducer, in, actionTable(sc.state.l, a))
	if err != nil {
		return state, err
	}
	next := first(out)
	if next == in {
		// The table may have been mutated in place; convert afresh next time.
		sc.lastGo, sc.lastLua = nil, nil
		return state, nil
	}
	goNext := toGo(next)
	sc.lastGo, sc.lastLua = goNext, next
	return goNext, nil
}

func actionTable(L *lua.LState, a data.Action) *lua.LTable {
	t := L.CreateTable(0, len(a.Payload)+1)
	for _, k := range slices.Sorted(maps.Keys(a.Payload)) {
		t.RawSetString(k, toLua(L, a.Payload[k]))
	}
	t.RawSetString("type", lua.LString(a.Type))
	return t
}

func (sc *Script) selector(fn *lua.LFunction) data.SelectorFunc {
	return func(state data.State, args ...any) (any, error) {
		sc.state.mu.Lock()
		defer sc.state.mu.Unlock()

		in := []lua.LValue{toLua(sc.state.l, state)}
		for _, a := range args {
			in = append(in, toLua(sc.state.l, a))
		}
		out, err := sc.state.callLocked(fn, in...)
		if err != nil {
			return nil, err
		}
		return toGo(first(out)), nil
	}
}

// actionCreator wraps a Lua function returning an action table, or nil to
// dispatch nothing.
func (sc *Script) actionCreator(name string, fn *lua.LFunction) data.ActionCreator {
	return func(args ...any) (data.Result, error) {
		sc.state.mu.Lock()
		defer sc.state.mu.Unlock()

		in := make([]lua.LValue, len(args))
		for i, a := range args {
			in[i] = toLua(sc.state.l, a)
		}
		out, err := sc.state.callLocked(fn, in...)
		if err != nil {
			return nil, err
		}

		ret := first(out)
		if ret == lua.LNil {
			return nil, nil
		}
		fields, ok := toGo(ret).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: action must be a table, got %s", name, ret.Type())
		}
		typ, _ := fields["type"].(string)
		if typ == "" {
			return nil, fmt.Errorf("%s: action has no type", name)
		}
		delete(fields, "type")
		if len(fields) == 0 {
			fields = nil
		}
		return data.Action{Type: typ, Payload: fields}, nil
	}
}
