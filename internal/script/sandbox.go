package script

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/datakit/internal/logging"
)

// safeModules may be loaded with require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// openSafeLibraries opens the base, table, string and math libraries. io,
// os, debug and package are never opened.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// installSandbox removes the loaders that reach the file system, limits
// require to the opened libraries, routes print to the logger and installs
// the datakit helper module.
func installSandbox(L *lua.LState, logger *logging.Logger) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !safeModules[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(L.GetGlobal(name))
		return 1
	}))

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		logger.Info("lua print", "msg", strings.Join(parts, "\t"))
		return 0
	}))

	L.SetGlobal("datakit", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"assign": luaAssign,
		"append": luaAppend,
	}))
}

// luaAssign copies the fields of every source table into target and
// returns target: datakit.assign({}, state, { count = 1 }).
func luaAssign(L *lua.LState) int {
	target := L.CheckTable(1)
	for i := 2; i <= L.GetTop(); i++ {
		src, ok := L.Get(i).(*lua.LTable)
		if !ok {
			continue
		}
		src.ForEach(func(k, v lua.LValue) {
			target.RawSet(k, v)
		})
	}
	L.Push(target)
	return 1
}

// luaAppend returns a new list holding the items of list followed by the
// remaining arguments.
func luaAppend(L *lua.LState) int {
	out := L.NewTable()
	if list, ok := L.Get(1).(*lua.LTable); ok {
		for i := 1; i <= list.Len(); i++ {
			out.Append(list.RawGetInt(i))
		}
	}
	for i := 2; i <= L.GetTop(); i++ {
		out.Append(L.Get(i))
	}
	L.Push(out)
	return 1
}
