package entities

import "errors"

var (
	// ErrRecordNotFound is returned when editing, or fetching, a record that
	// does not exist.
	ErrRecordNotFound = errors.New("entity record not found")

	// ErrMissingKey is returned when a received record has no id.
	ErrMissingKey = errors.New("entity record has no id")
)
