package script

import "errors"

var (
	// ErrStateClosed is returned when calling into a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrTimeout is returned when a Lua call runs past the execution
	// timeout.
	ErrTimeout = errors.New("lua execution timeout")

	// ErrInvalidScript is returned when a script does not define a usable
	// store.
	ErrInvalidScript = errors.New("invalid store script")
)
