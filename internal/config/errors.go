package config

import (
	"errors"
	"fmt"

	"github.com/dshills/datakit/internal/config/loader"
)

var (
	// ErrTypeMismatch indicates a setting has the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrValidationFailed indicates a setting has an unusable value.
	ErrValidationFailed = errors.New("validation failed")
)

// ParseError reports a configuration file that could not be parsed.
type ParseError = loader.ParseError

// TypeError is returned when a setting cannot be decoded.
type TypeError struct {
	Path     string
	Expected string
	Actual   any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error for %s: expected %s, got %T", e.Path, e.Expected, e.Actual)
}

// Is matches ErrTypeMismatch.
func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// ValidationError describes a setting with an invalid value.
type ValidationError struct {
	Path    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

// Is matches ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
