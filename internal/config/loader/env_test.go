package loader

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEnvLoader_Load(t *testing.T) {
	t.Setenv("DATAKIT_LOG_LEVEL", "debug")
	t.Setenv("DATAKIT_PERSIST_DEBOUNCE", "2s")
	t.Setenv("DATAKIT_SELECTOR_CACHE_SIZE", "1")
	t.Setenv("DATAKIT_HISTORY_MAX_ENTRIES", "20")
	t.Setenv("DATAKIT_SCRIPT_PATHS", `["a.lua","b.lua"]`)

	config, err := NewEnvLoader(Prefix).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"logging.level", "debug"},
		{"persistence.debounce", 2 * time.Second},
		{"selectors.cacheSize", int64(1)},
		{"history.maxEntries", int64(20)},
		{"scripts.paths", []any{"a.lua", "b.lua"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, getByPath(config, tt.path)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.path, diff)
		}
	}
}

func TestEnvLoader_LoadUnmapped(t *testing.T) {
	t.Setenv("DATAKIT_CUSTOM_SETTING_NAME", "value")

	config, err := NewEnvLoader(Prefix).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got := getByPath(config, "custom.settingName"); got != "value" {
		t.Errorf("custom.settingName = %v, want value", got)
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	l := NewEnvLoader(Prefix)
	tests := map[string]string{
		"DATAKIT_HISTORY_MAX_ENTRIES": "history.maxEntries",
		"DATAKIT_LOGGING_LEVEL":       "logging.level",
		"DATAKIT_DEBUG":               "debug",
	}
	for env, want := range tests {
		if got := l.envToPath(env); got != want {
			t.Errorf("envToPath(%q) = %q, want %q", env, got, want)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", ""},
		{"true", true},
		{"OFF", false},
		{"42", int64(42)},
		{"0", int64(0)},
		{"1.5", 1.5},
		{"500ms", 500 * time.Millisecond},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{"[broken", "[broken"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, parseValue(tt.in)); diff != "" {
			t.Errorf("parseValue(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func getByPath(m map[string]any, path string) any {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[part]
	}
	return cur
}
