package config

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/datakit/internal/history"
	"github.com/dshills/datakit/internal/logging"
	"github.com/dshills/datakit/internal/persist"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(s), nil
}

func (m memFS) Stat(string) (fs.FileInfo, error) {
	return nil, fs.ErrNotExist
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if c.Persistence.Backend != persist.BackendFile || c.Persistence.StorageKey != persist.DefaultStorageKey {
		t.Errorf("persistence = %+v", c.Persistence)
	}
	if c.History.MaxEntries != history.DefaultMaxEntries {
		t.Errorf("history.maxEntries = %d", c.History.MaxEntries)
	}
	if c.Persistence.Debounce != persist.DefaultDebounceDelay {
		t.Errorf("debounce = %v", c.Persistence.Debounce)
	}
	if diff := cmp.Diff([]string{"defaults"}, c.Sources()); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLayers(t *testing.T) {
	fsys := memFS{"/datakit.toml": `
[logging]
level = "debug"

[persistence]
backend = "sqlite"
path = "/var/lib/datakit"
debounce = 100

[selectors]
cacheSize = 8
`}
	t.Setenv("DATAKIT_SELECTOR_CACHE_SIZE", "16")
	t.Setenv("DATAKIT_SCRIPT_PATHS", "a.lua,b.lua")

	c, err := Load(WithFS(fsys), WithFile("/datakit.toml"), WithOverrides(map[string]any{
		"logging": map[string]any{"format": "json"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	if c.Logging.Level != "debug" || c.Logging.Format != "json" {
		t.Errorf("logging = %+v", c.Logging)
	}
	if c.Persistence.Backend != "sqlite" || c.Persistence.Path != "/var/lib/datakit" {
		t.Errorf("persistence = %+v", c.Persistence)
	}
	if c.Persistence.Debounce != 100*time.Millisecond {
		t.Errorf("debounce = %v, want 100ms", c.Persistence.Debounce)
	}
	if c.Selectors.CacheSize != 16 {
		t.Errorf("cacheSize = %d, want the environment value 16", c.Selectors.CacheSize)
	}
	if diff := cmp.Diff([]string{"a.lua", "b.lua"}, c.Scripts.Paths); diff != "" {
		t.Errorf("script paths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"defaults", "/datakit.toml", "environment", "overrides"}, c.Sources()); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	if v, ok := c.Get("persistence.backend"); !ok || v != "sqlite" {
		t.Errorf("Get(persistence.backend) = %v, %v", v, ok)
	}
	if lc := c.LoggerConfig(); lc.Level != logging.LevelDebug || lc.Format != "json" {
		t.Errorf("LoggerConfig() = %+v", lc)
	}
}

func TestLoadYAML(t *testing.T) {
	fsys := memFS{"/datakit.yml": `
history:
  maxEntries: 10
scripts:
  paths: [stores/todos.lua]
  timeout: 250ms
`}
	c, err := Load(WithFS(fsys), WithFile("/datakit.yml"), WithEnv(false))
	if err != nil {
		t.Fatal(err)
	}
	if c.History.MaxEntries != 10 || c.Scripts.Timeout != 250*time.Millisecond {
		t.Errorf("config = %+v %+v", c.History, c.Scripts)
	}
	if diff := cmp.Diff([]string{"stores/todos.lua"}, c.Scripts.Paths); diff != "" {
		t.Errorf("script paths mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(WithFS(memFS{}), WithFile("/missing.toml"), WithEnv(false))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Sources()) != 1 {
		t.Errorf("sources = %v, want defaults only", c.Sources())
	}
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(WithFS(memFS{"/bad.toml": "level = = 1"}), WithFile("/bad.toml"), WithEnv(false))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("err = %v, want *ParseError", err)
	}
}

func TestLoadTypeErrors(t *testing.T) {
	fsys := memFS{"/c.toml": `
[history]
maxEntries = "many"

[logging]
level = 3
`}
	_, err := Load(WithFS(fsys), WithFile("/c.toml"), WithEnv(false))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
	var terr *TypeError
	if !errors.As(err, &terr) || terr.Path != "logging.level" {
		t.Errorf("first TypeError = %+v", terr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "redis" }, "persistence.backend"},
		{"missing path", func(c *Config) { c.Persistence.Path = "" }, "persistence.path"},
		{"negative cache", func(c *Config) { c.Selectors.CacheSize = -1 }, "selectors.cacheSize"},
		{"negative history", func(c *Config) { c.History.MaxEntries = -1 }, "history.maxEntries"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Path != tt.path {
				t.Errorf("Validate() = %v, want a ValidationError for %s", err, tt.path)
			}
			if !errors.Is(err, ErrValidationFailed) {
				t.Errorf("Validate() = %v, want ErrValidationFailed", err)
			}
		})
	}

	c := Default()
	c.Persistence.Enabled = false
	c.Persistence.Backend = "anything"
	if err := c.Validate(); err != nil {
		t.Errorf("disabled persistence should not validate the backend: %v", err)
	}
}

func TestMergedIsACopy(t *testing.T) {
	c := Default()
	m := c.Merged()
	m["logging"].(map[string]any)["level"] = "error"
	if v, _ := c.Get("logging.level"); v != "info" {
		t.Errorf("Merged() shares state with the config: level = %v", v)
	}
}
