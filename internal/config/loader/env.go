package loader

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Prefix is the environment variable prefix for datakit settings.
const Prefix = "DATAKIT_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string
	mapping map[string]string // env var -> config path
}

// NewEnvLoader creates a loader for variables starting with prefix, which
// includes the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(),
	}
}

// NewEnvLoaderWithMapping creates a loader with custom variable mappings.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: mapping,
	}
}

func defaultEnvMapping() map[string]string {
	return map[string]string{
		"DATAKIT_LOG_LEVEL":           "logging.level",
		"DATAKIT_LOG_FORMAT":          "logging.format",
		"DATAKIT_PERSIST_BACKEND":     "persistence.backend",
		"DATAKIT_PERSIST_PATH":        "persistence.path",
		"DATAKIT_PERSIST_KEY":         "persistence.storageKey",
		"DATAKIT_PERSIST_DEBOUNCE":    "persistence.debounce",
		"DATAKIT_HISTORY_MAX_ENTRIES": "history.maxEntries",
		"DATAKIT_SELECTOR_CACHE_SIZE": "selectors.cacheSize",
		"DATAKIT_SCRIPT_PATHS":        "scripts.paths",
		"DATAKIT_SCRIPT_TIMEOUT":      "scripts.timeout",
	}
}

// Load reads the environment. Mapped variables land on their configured
// path; other prefixed variables map by name, so DATAKIT_HISTORY_MAX_ENTRIES
// becomes history.maxEntries. An empty value is a value, not unset.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		setByPath(config, path, parseValue(value))
	}
	return config, nil
}

// AddMapping maps envVar to a config path.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// envToPath keeps the first word as the section and camel-cases the rest.
func (l *EnvLoader) envToPath(env string) string {
	words := strings.Split(strings.ToLower(strings.TrimPrefix(env, l.prefix)), "_")
	if len(words) == 1 {
		return words[0]
	}
	var key strings.Builder
	for i, w := range words[1:] {
		if i > 0 && w != "" {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		key.WriteString(w)
	}
	return words[0] + "." + key.String()
}

// parseValue types a raw value as bool, int64, float64, duration or JSON,
// falling back to the string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "":
		return s
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if (strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{")) && gjson.Valid(s) {
		return gjson.Parse(s).Value()
	}
	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}
