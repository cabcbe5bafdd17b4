package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/datakit/internal/logging"
)

// DefaultTimeout bounds a single call into Lua.
const DefaultTimeout = 2 * time.Second

// State is a sandboxed Lua runtime. gopher-lua states are not safe for
// concurrent use, so every call holds the state's mutex.
type State struct {
	mu     sync.Mutex
	l      *lua.LState
	closed bool

	timeout time.Duration
	logger  *logging.Logger
}

// StateOption configures a State.
type StateOption func(*State)

// WithTimeout sets the per-call execution timeout. Zero disables it.
func WithTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.timeout = d
	}
}

// WithLogger sets the logger receiving Lua print output.
func WithLogger(l *logging.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewState creates a sandboxed state.
func NewState(opts ...StateOption) *State {
	s := &State{
		timeout: DefaultTimeout,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("script")

	s.l = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(s.l)
	installSandbox(s.l, s.logger)
	return s
}

// DoString runs a chunk and returns its first result.
func (s *State) DoString(code string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	fn, err := s.l.LoadString(code)
	if err != nil {
		return nil, err
	}
	out, err := s.callLocked(fn)
	if err != nil {
		return nil, err
	}
	return toGo(first(out)), nil
}

// loadLocked compiles and runs a chunk, returning its first result as a Lua
// value. The caller holds s.mu.
func (s *State) loadLocked(name, code string) (lua.LValue, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	fn, err := s.l.Load(strings.NewReader(code), name)
	if err != nil {
		return nil, err
	}
	out, err := s.callLocked(fn)
	if err != nil {
		return nil, err
	}
	return first(out), nil
}

// callLocked calls fn with the execution timeout applied. The caller holds
// s.mu.
func (s *State) callLocked(fn *lua.LFunction, args ...lua.LValue) (_ []lua.LValue, err error) {
	if s.closed {
		return nil, ErrStateClosed
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.l.SetContext(ctx)
	defer s.l.RemoveContext()

	top := s.l.GetTop()
	defer func() {
		if rec := recover(); rec != nil {
			s.l.SetTop(top)
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()

	s.l.Push(fn)
	for _, a := range args {
		s.l.Push(a)
	}
	if err := s.l.PCall(len(args), lua.MultRet, nil); err != nil {
		s.l.SetTop(top)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
		}
		return nil, err
	}

	n := s.l.GetTop() - top
	out := make([]lua.LValue, n)
	for i := range n {
		out[i] = s.l.Get(top + i + 1)
	}
	s.l.SetTop(top)
	return out, nil
}

// IsClosed reports whether Close was called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Close is idempotent.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.l.Close()
	s.closed = true
	return nil
}

func first(vals []lua.LValue) lua.LValue {
	if len(vals) == 0 {
		return lua.LNil
	}
	return vals[0]
}
