// Package script defines stores in Lua.
//
// A script returns a table describing the store: its name, initial state,
// reducer, selectors, action creators, expression queries and persistence.
// Scripts run in a sandbox without io, os or file loaders, and every call
// into Lua is bounded by an execution timeout.
//
// Lua numbers with an integral value convert to int64, other numbers to
// float64. Tables with consecutive integer keys from 1 convert to []any,
// every other table to map[string]any.
package script
