package data

import (
	"context"
	"fmt"
)

// ActionInit is dispatched once, with a nil state, when a store registers.
const ActionInit = "@@INIT"

// Action is a plain record describing a state transition.
type Action struct {
	Type    string
	Payload map[string]any
}

// NewAction builds an action from alternating key/value pairs.
// A trailing key without a value is ignored.
func NewAction(typ string, kv ...any) Action {
	a := Action{Type: typ}
	if len(kv) >= 2 {
		a.Payload = make(map[string]any, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		a.Payload[key] = kv[i+1]
	}
	return a
}

// Get returns a payload field, or nil.
func (a Action) Get(key string) any {
	if a.Payload == nil {
		return nil
	}
	return a.Payload[key]
}

// GetString returns a payload field as a string, or "".
func (a Action) GetString(key string) string {
	s, _ := a.Get(key).(string)
	return s
}

// GetBool returns a payload field as a bool, or false.
func (a Action) GetBool(key string) bool {
	b, _ := a.Get(key).(bool)
	return b
}

// GetMap returns a payload field as a map, or nil.
func (a Action) GetMap(key string) map[string]any {
	m, _ := a.Get(key).(map[string]any)
	return m
}

// Result is what an action creator returns. It is one of Action, Thunk or
// Routine; a nil Result dispatches nothing.
type Result interface {
	result()
}

// Control is a value yielded by a Routine. It is one of Action,
// SelectControl, ResolveSelectControl, DispatchControl, AwaitControl or
// CustomControl.
type Control interface {
	control()
}

func (Action) result()  {}
func (Action) control() {}

// Thunk runs with access to its store's selectors and actions. It may
// block, and may dispatch any number of times; each dispatch is applied
// when it is made.
type Thunk func(ctx context.Context, api ThunkAPI) (any, error)

func (Thunk) result() {}

// Yield hands a control to the routine interpreter and returns the
// resolved value, or the error resolving it.
type Yield func(c Control) (any, error)

// Routine is a step-wise action creator result. Each yielded control is
// resolved in order before the routine resumes. A cancelled context makes
// every further yield fail, which is how a caller abandons a routine.
type Routine func(yield Yield) (any, error)

func (Routine) result() {}

// ActionCreator builds a Result from call arguments.
type ActionCreator func(args ...any) (Result, error)

// ActionOf returns an action creator producing an action of type typ whose
// payload maps keys, in order, to the positional call arguments.
func ActionOf(typ string, keys ...string) ActionCreator {
	return func(args ...any) (Result, error) {
		a := Action{Type: typ}
		if len(keys) > 0 {
			a.Payload = make(map[string]any, len(keys))
		}
		for i, key := range keys {
			if i < len(args) {
				a.Payload[key] = args[i]
			} else {
				a.Payload[key] = nil
			}
		}
		return a, nil
	}
}

// ThunkAPI is passed to a running thunk.
type ThunkAPI struct {
	// Select reads the thunk's own store.
	Select *Selectors

	// Dispatch calls the thunk's own store's action creators.
	Dispatch *Actions

	// Registry reaches other stores.
	Registry *Registry

	store *store
}

// State returns the thunk's own store state.
func (t ThunkAPI) State() State {
	state, _ := t.store.snapshot()
	return state
}

// SelectControl reads a selector. An empty Store means the routine's own
// store.
type SelectControl struct {
	Store    string
	Selector string
	Args     []any
}

// ResolveSelectControl reads a selector after waiting for its resolver.
type ResolveSelectControl struct {
	Store    string
	Selector string
	Args     []any
}

// DispatchControl calls an action creator. An empty Store means the
// routine's own store.
type DispatchControl struct {
	Store  string
	Action string
	Args   []any
}

// AwaitControl blocks on a function, typically I/O, and resumes the routine
// with its result.
type AwaitControl func(ctx context.Context) (any, error)

// CustomControl is resolved by the handler registered in the store's
// Controls under Type.
type CustomControl struct {
	Type    string
	Payload map[string]any
}

func (SelectControl) control()        {}
func (ResolveSelectControl) control() {}
func (DispatchControl) control()      {}
func (AwaitControl) control()         {}
func (CustomControl) control()        {}

// SelectFrom yields a selector read.
func SelectFrom(storeName, selector string, args ...any) Control {
	return SelectControl{Store: storeName, Selector: selector, Args: args}
}

// ResolveSelectFrom yields a selector read that waits for resolution.
func ResolveSelectFrom(storeName, selector string, args ...any) Control {
	return ResolveSelectControl{Store: storeName, Selector: selector, Args: args}
}

// DispatchTo yields an action creator call.
func DispatchTo(storeName, action string, args ...any) Control {
	return DispatchControl{Store: storeName, Action: action, Args: args}
}

// Await yields a blocking call.
func Await(fn func(ctx context.Context) (any, error)) Control {
	return AwaitControl(fn)
}

// Custom yields a store-specific control built from key/value pairs.
func Custom(typ string, kv ...any) Control {
	a := NewAction(typ, kv...)
	return CustomControl{Type: typ, Payload: a.Payload}
}

// ControlHandler resolves a CustomControl.
type ControlHandler func(ctx context.Context, c CustomControl) (any, error)

func controlName(c Control) string {
	switch v := c.(type) {
	case Action:
		return "action " + v.Type
	case SelectControl:
		return "select " + v.Selector
	case ResolveSelectControl:
		return "resolveSelect " + v.Selector
	case DispatchControl:
		return "dispatch " + v.Action
	case AwaitControl:
		return "await"
	case CustomControl:
		return v.Type
	default:
		return fmt.Sprintf("%T", c)
	}
}
