package app

import "errors"

// ErrClosed is returned when using an application after Close.
var ErrClosed = errors.New("application closed")

// InitError reports a component that failed to initialize.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
