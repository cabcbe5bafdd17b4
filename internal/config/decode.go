package config

import (
	"math"
	"os"
	"strings"
	"time"
)

// decoder reads typed settings from the merged map, collecting every
// TypeError instead of stopping at the first.
type decoder struct {
	m    map[string]any
	errs []error
}

func (d *decoder) fail(path, expected string, v any) {
	d.errs = append(d.errs, &TypeError{Path: path, Expected: expected, Actual: v})
}

func (d *decoder) string(path string) string {
	v, _ := getPath(d.m, path)
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		d.fail(path, "string", v)
		return ""
	}
}

func (d *decoder) bool(path string) bool {
	v, _ := getPath(d.m, path)
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		d.fail(path, "bool", v)
		return false
	}
}

func (d *decoder) int(path string) int {
	v, _ := getPath(d.m, path)
	switch v := v.(type) {
	case nil:
		return 0
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}
	d.fail(path, "integer", v)
	return 0
}

// duration accepts a time.Duration, a duration string such as "500ms", or
// a number of milliseconds.
func (d *decoder) duration(path string) time.Duration {
	v, _ := getPath(d.m, path)
	switch v := v.(type) {
	case nil:
		return 0
	case time.Duration:
		return v
	case string:
		if dur, err := time.ParseDuration(v); err == nil {
			return dur
		}
	case int64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	}
	d.fail(path, "duration", v)
	return 0
}

// strings accepts a list of strings or a single string holding a
// path-list-separated or comma-separated list.
func (d *decoder) strings(path string) []string {
	v, _ := getPath(d.m, path)
	switch v := v.(type) {
	case nil:
		return nil
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		sep := string(os.PathListSeparator)
		if !strings.Contains(v, sep) {
			sep = ","
		}
		var out []string
		for _, p := range strings.Split(v, sep) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				d.fail(path, "list of strings", v)
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	d.fail(path, "list of strings", v)
	return nil
}
