// Package config loads datakit's runtime configuration.
//
// Configuration is read in layers, later layers overriding earlier ones:
//
//	defaults < config file (TOML or YAML) < DATAKIT_* environment < overrides
//
// Layers are nested maps deep-merged key by key, then decoded into Config.
//
// # Sub-packages
//
//   - loader: TOML, YAML and environment layer loading
package config
