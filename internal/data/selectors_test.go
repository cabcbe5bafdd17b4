package data

import (
	"errors"
	"testing"
)

func TestSelectorMemoization(t *testing.T) {
	r := newTestRegistry(t)

	computes := 0
	cfg := counterConfig()
	cfg.Selectors["getBox"] = NewSelector(func(s State, args ...any) (any, error) {
		computes++
		return map[string]any{"value": s, "args": len(args)}, nil
	})
	mustRegister(t, r, "counter", cfg)
	sel, _ := r.Select("counter")

	first, _ := sel.Call("getBox")
	second, _ := sel.Call("getBox")
	if !Identical(first, second) {
		t.Error("unchanged state should return the identical value")
	}
	if computes != 1 {
		t.Errorf("computes = %d, want 1", computes)
	}

	mustCall(t, r, "counter", "inc")
	third, _ := sel.Call("getBox")
	if Identical(first, third) {
		t.Error("state change should invalidate the cache")
	}
	if computes != 2 {
		t.Errorf("computes = %d, want 2", computes)
	}

	stats, ok := sel.Stats("getBox")
	if !ok || stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("Stats() = %+v, %v", stats, ok)
	}
}

func TestSelectorArgsIdentity(t *testing.T) {
	r := newTestRegistry(t)

	computes := 0
	cfg := counterConfig()
	cfg.Selectors["withArgs"] = NewSelector(func(s State, args ...any) (any, error) {
		computes++
		return []any{s, args}, nil
	}, WithCacheSize(2))
	mustRegister(t, r, "counter", cfg)
	sel, _ := r.Select("counter")

	obj := map[string]any{"k": 1}
	sel.Call("withArgs", 1, obj)
	sel.Call("withArgs", 1, obj)
	if computes != 1 {
		t.Errorf("same primitive and same reference: computes = %d, want 1", computes)
	}

	sel.Call("withArgs", 1, map[string]any{"k": 1})
	if computes != 2 {
		t.Errorf("equal but distinct map should miss: computes = %d, want 2", computes)
	}

	sel.Call("withArgs", 2, obj)
	sel.Call("withArgs", 1, obj)
	if computes != 4 {
		t.Errorf("LRU of size 2 should have evicted first args: computes = %d, want 4", computes)
	}

	stats, _ := sel.Stats("withArgs")
	if stats.Size != 2 || stats.Evictions == 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestUnmemoizedSelector(t *testing.T) {
	r := newTestRegistry(t)

	computes := 0
	cfg := counterConfig()
	cfg.Selectors["fresh"] = Pure(func(s State, _ ...any) any {
		computes++
		return s
	}, Unmemoized())
	mustRegister(t, r, "counter", cfg)
	sel, _ := r.Select("counter")

	sel.Call("fresh")
	sel.Call("fresh")
	if computes != 2 {
		t.Errorf("computes = %d, want 2", computes)
	}
	if _, ok := sel.Stats("fresh"); ok {
		t.Error("Stats() should report false for unmemoized selectors")
	}
}

func TestSelectorErrorNotCached(t *testing.T) {
	r := newTestRegistry(t)

	computes := 0
	cfg := counterConfig()
	cfg.Selectors["risky"] = NewSelector(func(s State, args ...any) (any, error) {
		computes++
		if len(args) > 0 && args[0] == "bad" {
			return nil, errBoom
		}
		return s, nil
	})
	cfg.Selectors["panics"] = Pure(func(State, ...any) any { panic("selector exploded") })
	mustRegister(t, r, "counter", cfg)
	sel, _ := r.Select("counter")

	for i := 0; i < 2; i++ {
		_, err := sel.Call("risky", "bad")
		var se *SelectorError
		if !errors.As(err, &se) || se.Selector != "risky" || !errors.Is(err, errBoom) {
			t.Fatalf("error = %v, want SelectorError wrapping errBoom", err)
		}
	}
	if computes != 2 {
		t.Errorf("failed results were cached: computes = %d", computes)
	}

	if v, err := sel.Call("risky", "good"); err != nil || v != 0 {
		t.Errorf("risky(good) = %v, %v", v, err)
	}

	_, err := sel.Call("panics")
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Errorf("panic error = %v, want PanicError", err)
	}
}

func TestCrossStoreSelectorInvalidation(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "counter", counterConfig())
	mustRegister(t, r, "other", counterConfig())

	computes := 0
	mustRegister(t, r, "view", StoreConfig{
		Reducer: counterReducer,
		Actions: map[string]ActionCreator{"inc": ActionOf("INC")},
		Selectors: map[string]Selector{
			"sum": NewRegistrySelector(func(sc *SelectContext, s State, _ ...any) (any, error) {
				computes++
				v, err := sc.Call("counter", "getValue")
				if err != nil {
					return nil, err
				}
				return map[string]int{"sum": s.(int) + v.(int)}, nil
			}),
		},
	})
	sel, _ := r.Select("view")

	first, _ := sel.Call("sum")
	sel.Call("sum")
	if computes != 1 {
		t.Fatalf("computes = %d, want 1", computes)
	}

	mustCall(t, r, "other", "inc")
	if again, _ := sel.Call("sum"); !Identical(first, again) || computes != 1 {
		t.Error("change to an unrelated store should not invalidate")
	}

	mustCall(t, r, "counter", "add", 5)
	got, _ := sel.Call("sum")
	if computes != 2 || got.(map[string]int)["sum"] != 5 {
		t.Errorf("after dependency change: computes = %d, sum = %v", computes, got)
	}

	mustCall(t, r, "view", "inc")
	got, _ = sel.Call("sum")
	if computes != 3 || got.(map[string]int)["sum"] != 6 {
		t.Errorf("after own change: computes = %d, sum = %v", computes, got)
	}
}

func TestTransitiveSelectorDependencies(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "base", counterConfig())

	mid := counterConfig()
	mid.Selectors["fromBase"] = NewRegistrySelector(func(sc *SelectContext, _ State, _ ...any) (any, error) {
		return sc.Call("base", "getValue")
	})
	mustRegister(t, r, "mid", mid)

	topComputes := 0
	top := counterConfig()
	top.Selectors["fromMid"] = NewRegistrySelector(func(sc *SelectContext, _ State, _ ...any) (any, error) {
		topComputes++
		return sc.Call("mid", "fromBase")
	})
	mustRegister(t, r, "top", top)

	if v := mustSelect(t, r, "top", "fromMid"); v != 0 {
		t.Fatalf("fromMid = %v, want 0", v)
	}
	mustSelect(t, r, "top", "fromMid")
	mustCall(t, r, "base", "inc")

	if v := mustSelect(t, r, "top", "fromMid"); v != 1 {
		t.Errorf("fromMid = %v, want 1 after base change", v)
	}
	if topComputes != 2 {
		t.Errorf("topComputes = %d, want 2", topComputes)
	}
}

func TestSelectorsIntrospection(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "counter", counterConfig())

	sel, _ := r.Select("counter")
	if sel.Store() != "counter" || !sel.Has("getValue") || sel.Has("nope") {
		t.Error("selector introspection mismatch")
	}
	if names := sel.Names(); len(names) != 1 || names[0] != "getValue" {
		t.Errorf("Names() = %v", names)
	}

	acts, _ := r.Dispatch("counter")
	if acts.Store() != "counter" || !acts.Has("inc") {
		t.Error("action introspection mismatch")
	}
	if names := acts.Names(); len(names) != 5 || names[0] != "add" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSelectorCacheDisabledByRegistry(t *testing.T) {
	r := newTestRegistry(t, WithSelectorCacheSize(0))

	computes := 0
	cfg := counterConfig()
	cfg.Selectors["count"] = Pure(func(s State, _ ...any) any {
		computes++
		return s
	})
	cfg.Selectors["cached"] = Pure(func(s State, _ ...any) any { return s }, WithCacheSize(1))
	mustRegister(t, r, "counter", cfg)

	sel, _ := r.Select("counter")
	sel.Call("count")
	sel.Call("count")
	if computes != 2 {
		t.Errorf("computes = %d, want 2 with registry cache disabled", computes)
	}
	if _, ok := sel.Stats("cached"); !ok {
		t.Error("explicit cache size should still memoize")
	}
}

func TestRegistrySelectorReadsState(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "counter", counterConfig())

	cfg := counterConfig()
	cfg.Selectors["double"] = NewRegistrySelector(func(sc *SelectContext, _ State, _ ...any) (any, error) {
		sel, err := sc.Select("counter")
		if err != nil {
			return nil, err
		}
		return sel.State().(int) * 2, nil
	})
	mustRegister(t, r, "view", cfg)

	mustCall(t, r, "counter", "set", 4)
	if got := mustSelect(t, r, "view", "double"); got != 8 {
		t.Errorf("double = %v, want 8", got)
	}
	mustCall(t, r, "counter", "inc")
	if got := mustSelect(t, r, "view", "double"); got != 10 {
		t.Errorf("double after change = %v, want 10", got)
	}
}
