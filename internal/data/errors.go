package data

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Sentinel errors for registry operations.
var (
	// ErrDuplicateStore is returned when registering a name that is taken.
	ErrDuplicateStore = errors.New("store already registered")

	// ErrUnknownStore is returned when selecting from or dispatching to a
	// store that was never registered.
	ErrUnknownStore = errors.New("unknown store")

	// ErrUnknownSelector is returned when calling a selector a store does not
	// define.
	ErrUnknownSelector = errors.New("unknown selector")

	// ErrUnknownAction is returned when calling an action creator a store does
	// not define.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUnknownControl is returned when a routine yields a custom control no
	// handler is registered for.
	ErrUnknownControl = errors.New("unknown control")

	// ErrInvalidStoreConfig is returned when a store config is incomplete.
	ErrInvalidStoreConfig = errors.New("invalid store config")

	// ErrRegistryClosed is returned after Close.
	ErrRegistryClosed = errors.New("registry is closed")

	// ErrUnsupportedResult is returned when an action creator returns a
	// Result variant the dispatcher does not know.
	ErrUnsupportedResult = errors.New("unsupported action result")
)

// ReducerError wraps a failure raised by a reducer. The store's state is
// left at its pre-dispatch value.
type ReducerError struct {
	Store  string
	Action Action
	Err    error
}

// Error implements the error interface.
func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer for store %q failed on %q: %v", e.Store, e.Action.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReducerError) Unwrap() error {
	return e.Err
}

// SelectorError wraps a failure raised by a selector. Failed results are
// never cached.
type SelectorError struct {
	Store    string
	Selector string
	Err      error
}

// Error implements the error interface.
func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector %s.%s failed: %v", e.Store, e.Selector, e.Err)
}

// Unwrap returns the underlying error.
func (e *SelectorError) Unwrap() error {
	return e.Err
}

// ControlError wraps a failure resolving a control yielded by a routine.
type ControlError struct {
	Store   string
	Control string
	Err     error
}

// Error implements the error interface.
func (e *ControlError) Error() string {
	return fmt.Sprintf("control %s in store %q failed: %v", e.Control, e.Store, e.Err)
}

// Unwrap returns the underlying error.
func (e *ControlError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking reducer, selector,
// thunk, routine or resolver.
type PanicError struct {
	Value any
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newPanicError(v any) *PanicError {
	if err, ok := v.(error); ok {
		var pe *PanicError
		if errors.As(err, &pe) {
			return pe
		}
	}
	return &PanicError{Value: v, Stack: string(debug.Stack())}
}
