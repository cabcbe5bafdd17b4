// Package query evaluates expr-lang expressions against store state.
//
// An expression sees the store state as state, the call arguments as args,
// and can read any store with Select(store, selector, args...):
//
//	len(filter(state.items, .done))
//	Select("core/preferences", "get", "core/edit-post", "fixedToolbar") ?? false
//
// A compiled Query can be installed as a store selector; stores it reads
// through Select become dependencies of the memoized result.
package query

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dshills/datakit/internal/data"
)

var (
	// ErrCompile is returned for expressions that do not compile.
	ErrCompile = errors.New("query compile error")

	// ErrNoRegistry is returned when an expression evaluated without a
	// registry calls Select.
	ErrNoRegistry = errors.New("query has no registry")
)

// reader reads selectors of other stores.
type reader interface {
	Call(store, selector string, args ...any) (any, error)
}

// selectFunc is the type of the Select function seen by expressions.
type selectFunc = func(store, selector string, args ...any) (any, error)

// compileEnv declares the names known at compile time. state is left out
// so that it compiles as an untyped value; unknown names evaluate to nil.
var compileEnv = map[string]any{
	"args":   []any{},
	"Select": selectFunc(nil),
}

// newEnv builds the evaluation environment. The first error returned by
// Select is recorded in failed.
func newEnv(state any, args []any, rd reader, failed *error) map[string]any {
	if args == nil {
		args = []any{}
	}
	sel := func(store, selector string, args ...any) (any, error) {
		var (
			v   any
			err error
		)
		if rd == nil {
			err = ErrNoRegistry
		} else {
			v, err = rd.Call(store, selector, args...)
		}
		if err != nil && *failed == nil {
			*failed = err
		}
		return v, err
	}
	return map[string]any{
		"state":  state,
		"args":   args,
		"Select": selectFunc(sel),
	}
}

// Query is a compiled expression.
type Query struct {
	src     string
	program *vm.Program
}

// Compile compiles src.
func Compile(src string) (*Query, error) {
	if src == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrCompile)
	}
	program, err := expr.Compile(src, expr.Env(compileEnv), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	return &Query{src: src, program: program}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Query {
	q, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return q
}

// String returns the source expression.
func (q *Query) String() string {
	return q.src
}

// Eval evaluates the query against state without registry access.
func (q *Query) Eval(state any, args ...any) (any, error) {
	return q.run(state, args, nil)
}

func (q *Query) run(state any, args []any, rd reader) (any, error) {
	var failed error
	out, err := expr.Run(q.program, newEnv(state, args, rd, &failed))
	if failed != nil {
		// Keep the selector error matchable with errors.Is.
		return nil, fmt.Errorf("query %q: %w", q.src, failed)
	}
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q.src, err)
	}
	return out, nil
}

// Selector returns a store selector evaluating the query with the store's
// state and the selector arguments.
func (q *Query) Selector(opts ...data.SelectorOption) data.Selector {
	return data.NewRegistrySelector(func(sc *data.SelectContext, state data.State, args ...any) (any, error) {
		return q.run(state, args, sc)
	}, opts...)
}

// registryReader reads selectors straight from a registry.
type registryReader struct {
	r *data.Registry
}

func (rr registryReader) Call(store, selector string, args ...any) (any, error) {
	sel, err := rr.r.Select(store)
	if err != nil {
		return nil, err
	}
	return sel.Call(selector, args...)
}

// Run compiles src and evaluates it once against the current state of a
// registered store.
func Run(r *data.Registry, store, src string, args ...any) (any, error) {
	q, err := Compile(src)
	if err != nil {
		return nil, err
	}
	sel, err := r.Select(store)
	if err != nil {
		return nil, err
	}
	return q.run(sel.State(), args, registryReader{r})
}
