package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dshills/datakit/internal/config/loader"
	"github.com/dshills/datakit/internal/history"
	"github.com/dshills/datakit/internal/logging"
	"github.com/dshills/datakit/internal/persist"
	"github.com/dshills/datakit/internal/script"
)

// Config is the decoded configuration.
type Config struct {
	Logging     Logging
	Persistence Persistence
	History     History
	Selectors   Selectors
	Scripts     Scripts

	merged  map[string]any
	sources []string
}

// Logging configures the process logger.
type Logging struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// Persistence configures where persisted stores are saved.
type Persistence struct {
	Enabled    bool
	Backend    string // file, sqlite or memory
	Path       string
	StorageKey string
	// Debounce delays expensive saves.
	Debounce time.Duration
}

// History configures the undo history.
type History struct {
	MaxEntries int
}

// Selectors configures selector memoization.
type Selectors struct {
	// CacheSize is the per-selector cache size; zero disables memoization.
	CacheSize int
}

// Scripts configures Lua-defined stores.
type Scripts struct {
	Paths   []string
	Timeout time.Duration
}

// Option configures Load.
type Option func(*options)

type options struct {
	file      string
	fs        loader.FileSystem
	env       bool
	overrides map[string]any
}

// WithFile adds a TOML or YAML file layer. A missing file is not an error.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithFS reads the config file through fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnv enables or disables the DATAKIT_* environment layer.
func WithEnv(enable bool) Option {
	return func(o *options) {
		o.env = enable
	}
}

// WithOverrides adds a final layer, typically from command-line flags.
func WithOverrides(m map[string]any) Option {
	return func(o *options) {
		o.overrides = m
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	c, err := decode(defaults(), []string{"defaults"})
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return c
}

// Load reads, merges, decodes and validates every layer.
func Load(opts ...Option) (*Config, error) {
	o := options{fs: loader.DefaultFS(), env: true}
	for _, opt := range opts {
		opt(&o)
	}

	merged := defaults()
	sources := []string{"defaults"}

	if o.file != "" {
		l, err := loader.ForFile(o.fs, o.file)
		if err != nil {
			return nil, err
		}
		m, err := l.Load()
		if err != nil {
			return nil, err
		}
		if m != nil {
			merged = loader.DeepMerge(merged, m)
			sources = append(sources, o.file)
		}
	}

	if o.env {
		m, err := loader.NewEnvLoader(loader.Prefix).Load()
		if err != nil {
			return nil, err
		}
		if len(m) > 0 {
			merged = loader.DeepMerge(merged, m)
			sources = append(sources, "environment")
		}
	}

	if len(o.overrides) > 0 {
		merged = loader.DeepMerge(merged, loader.Clone(o.overrides))
		sources = append(sources, "overrides")
	}

	c, err := decode(merged, sources)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaults() map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"persistence": map[string]any{
			"enabled":    true,
			"backend":    persist.BackendFile,
			"path":       defaultDataDir(),
			"storageKey": persist.DefaultStorageKey,
			"debounce":   persist.DefaultDebounceDelay,
		},
		"history": map[string]any{
			"maxEntries": int64(history.DefaultMaxEntries),
		},
		"selectors": map[string]any{
			"cacheSize": int64(64),
		},
		"scripts": map[string]any{
			"paths":   []any{},
			"timeout": script.DefaultTimeout,
		},
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".datakit"
	}
	return filepath.Join(dir, "datakit")
}

func decode(m map[string]any, sources []string) (*Config, error) {
	d := decoder{m: m}
	c := &Config{
		Logging: Logging{
			Level:  d.string("logging.level"),
			Format: d.string("logging.format"),
		},
		Persistence: Persistence{
			Enabled:    d.bool("persistence.enabled"),
			Backend:    d.string("persistence.backend"),
			Path:       d.string("persistence.path"),
			StorageKey: d.string("persistence.storageKey"),
			Debounce:   d.duration("persistence.debounce"),
		},
		History:   History{MaxEntries: d.int("history.maxEntries")},
		Selectors: Selectors{CacheSize: d.int("selectors.cacheSize")},
		Scripts: Scripts{
			Paths:   d.strings("scripts.paths"),
			Timeout: d.duration("scripts.timeout"),
		},
		merged:  m,
		sources: sources,
	}
	if err := errors.Join(d.errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports settings with unusable values.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path, msg string, v any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.Logging.Level)) {
		invalid("logging.level", "must be debug, info, warn or error", c.Logging.Level)
	}
	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		invalid("logging.format", "must be text or json", c.Logging.Format)
	}
	if c.Persistence.Enabled {
		switch c.Persistence.Backend {
		case persist.BackendFile, persist.BackendSQLite:
			if c.Persistence.Path == "" {
				invalid("persistence.path", "required for the "+c.Persistence.Backend+" backend", c.Persistence.Path)
			}
		case persist.BackendMemory:
		default:
			invalid("persistence.backend", "must be file, sqlite or memory", c.Persistence.Backend)
		}
		if c.Persistence.StorageKey == "" {
			invalid("persistence.storageKey", "must not be empty", c.Persistence.StorageKey)
		}
	}
	if c.Persistence.Debounce < 0 {
		invalid("persistence.debounce", "must not be negative", c.Persistence.Debounce)
	}
	if c.History.MaxEntries < 0 {
		invalid("history.maxEntries", "must not be negative", c.History.MaxEntries)
	}
	if c.Selectors.CacheSize < 0 {
		invalid("selectors.cacheSize", "must not be negative", c.Selectors.CacheSize)
	}
	if c.Scripts.Timeout < 0 {
		invalid("scripts.timeout", "must not be negative", c.Scripts.Timeout)
	}
	return errors.Join(errs...)
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Logging.Level)
	lc.Format = c.Logging.Format
	return lc
}

// Get returns the merged value at a dot-separated path.
func (c *Config) Get(path string) (any, bool) {
	return getPath(c.merged, path)
}

// Merged returns a copy of the merged configuration map.
func (c *Config) Merged() map[string]any {
	return loader.Clone(c.merged)
}

// Sources lists the layers that contributed, lowest priority first.
func (c *Config) Sources() []string {
	return slices.Clone(c.sources)
}

func getPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		cm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = cm[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
