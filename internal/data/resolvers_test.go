package data

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func resolvedConfig(fetches *atomic.Int32, fail bool) StoreConfig {
	cfg := counterConfig()
	cfg.Resolvers = map[string]Resolver{
		"getValue": {
			Fulfill: func(ctx context.Context, args ...any) (Result, error) {
				fetches.Add(1)
				if fail {
					return nil, errBoom
				}
				return Routine(func(yield Yield) (any, error) {
					v, err := yield(Await(func(context.Context) (any, error) { return 42, nil }))
					if err != nil {
						return nil, err
					}
					return yield(NewAction("SET", "value", v))
				}), nil
			},
		},
	}
	return cfg
}

func TestResolveSelect(t *testing.T) {
	r := newTestRegistry(t)
	var fetches atomic.Int32
	mustRegister(t, r, "counter", resolvedConfig(&fetches, false))

	sel, _ := r.Select("counter")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := sel.ResolveSelect(ctx, "getValue")
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Errorf("ResolveSelect() = %v, want 42", v)
	}
	if !sel.HasStartedResolution("getValue") || !sel.HasFinishedResolution("getValue") {
		t.Error("resolution metadata not recorded")
	}
	if sel.IsResolving("getValue") {
		t.Error("IsResolving() should be false once finished")
	}

	sel.Call("getValue")
	sel.Call("getValue", nil)
	r.Wait()
	if n := fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestInvalidateResolution(t *testing.T) {
	r := newTestRegistry(t)
	var fetches atomic.Int32
	mustRegister(t, r, "counter", resolvedConfig(&fetches, false))

	sel, _ := r.Select("counter")
	acts, _ := r.Dispatch("counter")
	ctx := context.Background()

	sel.ResolveSelect(ctx, "getValue")
	acts.InvalidateResolution("getValue")
	if sel.HasStartedResolution("getValue") {
		t.Error("resolution should be forgotten")
	}
	sel.ResolveSelect(ctx, "getValue")
	acts.InvalidateResolutionForStore()
	sel.ResolveSelect(ctx, "getValue")
	r.Wait()

	if n := fetches.Load(); n != 3 {
		t.Errorf("fetches = %d, want 3", n)
	}
}

func TestResolverFailure(t *testing.T) {
	r := newTestRegistry(t)
	var fetches atomic.Int32
	mustRegister(t, r, "counter", resolvedConfig(&fetches, true))

	sel, _ := r.Select("counter")
	_, err := sel.ResolveSelect(context.Background(), "getValue")
	if !errors.Is(err, errBoom) {
		t.Fatalf("ResolveSelect() error = %v, want errBoom", err)
	}
	if !errors.Is(sel.ResolutionError("getValue"), errBoom) {
		t.Error("ResolutionError() should report the failure")
	}
	if !sel.HasFinishedResolution("getValue") {
		t.Error("failed resolution counts as finished")
	}
}

func TestResolverSkippedWhenFulfilled(t *testing.T) {
	r := newTestRegistry(t)
	var fetches atomic.Int32
	cfg := resolvedConfig(&fetches, false)
	res := cfg.Resolvers["getValue"]
	res.IsFulfilled = func(state State, _ ...any) bool { return state.(int) != 0 }
	cfg.Resolvers["getValue"] = res
	mustRegister(t, r, "counter", cfg)
	mustCall(t, r, "counter", "set", 5)

	sel, _ := r.Select("counter")
	v, err := sel.ResolveSelect(context.Background(), "getValue")
	if err != nil || v != 5 {
		t.Errorf("ResolveSelect() = %v, %v, want 5", v, err)
	}
	r.Wait()
	if n := fetches.Load(); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}
}

func TestResolverNotifiesListeners(t *testing.T) {
	r := newTestRegistry(t)
	var fetches atomic.Int32
	mustRegister(t, r, "counter", resolvedConfig(&fetches, false))

	var calls atomic.Int32
	r.Subscribe(func() { calls.Add(1) })

	sel, _ := r.Select("counter")
	sel.Call("getValue")
	r.Wait()

	// started, the SET dispatch, finished
	if n := calls.Load(); n != 3 {
		t.Errorf("listener calls = %d, want 3", n)
	}
}

func TestResolveSelectContextCancelled(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	cfg := counterConfig()
	cfg.Resolvers = map[string]Resolver{
		"getValue": {
			Fulfill: func(ctx context.Context, _ ...any) (Result, error) {
				<-release
				return nil, nil
			},
		},
	}
	mustRegister(t, r, "counter", cfg)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sel, _ := r.Select("counter")
	if _, err := sel.ResolveSelect(ctx, "getValue"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if !sel.IsResolving("getValue") {
		t.Error("resolver should still be running")
	}
}

func TestArgsKey(t *testing.T) {
	tests := []struct {
		name string
		a, b []any
		same bool
	}{
		{"trailing nil ignored", []any{1}, []any{1, nil}, true},
		{"empty and nil", nil, []any{nil, nil}, true},
		{"different values", []any{1}, []any{2}, false},
		{"order matters", []any{1, 2}, []any{2, 1}, false},
		{"maps by value", []any{map[string]any{"a": 1}}, []any{map[string]any{"a": 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := argsKey(tt.a) == argsKey(tt.b); got != tt.same {
				t.Errorf("argsKey(%v) == argsKey(%v) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}
