package script

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/datakit/internal/logging"
)

func newState(t *testing.T, opts ...StateOption) *State {
	t.Helper()
	opts = append([]StateOption{WithLogger(logging.NullLogger)}, opts...)
	s := NewState(opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDoString(t *testing.T) {
	s := newState(t)

	got, err := s.DoString(`return 1 + 2`)
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(3) {
		t.Errorf("DoString = %v (%T), want 3", got, got)
	}

	if _, err := s.DoString(`return (`); err == nil {
		t.Error("syntax error should fail")
	}
	if _, err := s.DoString(`error("boom")`); err == nil {
		t.Error("runtime error should fail")
	}
}

func TestSandbox(t *testing.T) {
	s := newState(t)

	for _, name := range []string{"io", "os", "debug", "package", "dofile", "loadfile", "load", "loadstring"} {
		got, err := s.DoString(`return ` + name + ` == nil`)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != true {
			t.Errorf("%s is available in the sandbox", name)
		}
	}

	if _, err := s.DoString(`return require("io")`); err == nil {
		t.Error(`require("io") should fail`)
	}
	got, err := s.DoString(`return require("string").upper("x")`)
	if err != nil || got != "X" {
		t.Errorf(`require("string") = %v, %v`, got, err)
	}
}

func TestPrintIsLogged(t *testing.T) {
	s := newState(t)
	if _, err := s.DoString(`print("hello", 1, nil)`); err != nil {
		t.Errorf("print: %v", err)
	}
}

func TestTimeout(t *testing.T) {
	s := newState(t, WithTimeout(50*time.Millisecond))

	_, err := s.DoString(`while true do end`)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// The state stays usable after a timeout.
	if got, err := s.DoString(`return "ok"`); err != nil || got != "ok" {
		t.Errorf("after timeout = %v, %v", got, err)
	}
}

func TestHelpers(t *testing.T) {
	s := newState(t)

	got, err := s.DoString(`
		local base = { a = 1, b = 1 }
		local out = datakit.assign({}, base, { b = 2 })
		return { a = out.a, b = out.b, same = (out == base), base_b = base.b }
	`)
	if err != nil {
		t.Fatal(err)
	}
	m := got.(map[string]any)
	if m["a"] != int64(1) || m["b"] != int64(2) || m["same"] != false || m["base_b"] != int64(1) {
		t.Errorf("assign result = %v", m)
	}

	got, err = s.DoString(`
		local list = { 1, 2 }
		local out = datakit.append(list, 3)
		return { #list, #out, out[3] }
	`)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(2), int64(3), int64(3)}
	gl := got.([]any)
	for i := range want {
		if gl[i] != want[i] {
			t.Errorf("append result = %v, want %v", gl, want)
			break
		}
	}
}

func TestClose(t *testing.T) {
	s := NewState(WithLogger(logging.NullLogger))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if !s.IsClosed() {
		t.Error("IsClosed = false after Close")
	}
	if _, err := s.DoString(`return 1`); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString after Close err = %v, want ErrStateClosed", err)
	}
}
