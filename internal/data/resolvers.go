package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Resolver fetches the data a selector reads, the first time the selector is
// called with a given argument list.
type Resolver struct {
	// Fulfill produces the result to dispatch, typically a Thunk or Routine
	// that fetches and stores the data.
	Fulfill func(ctx context.Context, args ...any) (Result, error)

	// IsFulfilled, when set, skips resolution if the state already holds
	// the data.
	IsFulfilled func(state State, args ...any) bool
}

// resolution tracks one resolver run.
type resolution struct {
	done chan struct{}
	err  error
}

func (r *resolution) settled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *resolution) finish(err error) {
	r.err = err
	close(r.done)
}

// resolutionMeta indexes resolver runs by selector name and argument key.
type resolutionMeta struct {
	mu      sync.Mutex
	entries map[string]map[string]*resolution
}

func (m *resolutionMeta) get(name string, args []any) *resolution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[name][argsKey(args)]
}

// start records a new run. It returns false if one already exists.
func (m *resolutionMeta) start(name string, args []any) (*resolution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := argsKey(args)
	if m.entries == nil {
		m.entries = make(map[string]map[string]*resolution)
	}
	if m.entries[name] == nil {
		m.entries[name] = make(map[string]*resolution)
	}
	if _, ok := m.entries[name][key]; ok {
		return nil, false
	}
	r := &resolution{done: make(chan struct{})}
	m.entries[name][key] = r
	return r, true
}

func (m *resolutionMeta) invalidate(name string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[name], argsKey(args))
}

func (m *resolutionMeta) invalidateSelector(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
}

func (m *resolutionMeta) invalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// argsKey encodes an argument list as a map key. Trailing nil arguments are
// ignored so that f() and f(nil) share a resolution.
func argsKey(args []any) string {
	n := len(args)
	for n > 0 && args[n-1] == nil {
		n--
	}
	if n == 0 {
		return "[]"
	}
	b, err := json.Marshal(args[:n])
	if err != nil {
		return fmt.Sprintf("%#v", args[:n])
	}
	return string(b)
}

// fulfill starts the resolver for name and args, if any, in the background.
func (s *store) fulfill(name string, args []any) {
	res, ok := s.resolvers[name]
	if !ok || res.Fulfill == nil {
		return
	}
	if res.IsFulfilled != nil {
		state, _ := s.snapshot()
		if res.IsFulfilled(state, args...) {
			return
		}
	}

	run, started := s.meta.start(name, args)
	if !started {
		return
	}

	args = append([]any(nil), args...)
	ok = s.registry.goTracked(func(ctx context.Context) {
		s.registry.notify(ctx, s)

		err := s.runResolver(ctx, res, args)
		if err != nil {
			s.logger.Warn("resolver failed", "selector", name, "error", err)
		}
		run.finish(err)
		s.registry.notify(ctx, s)
	})
	if !ok {
		run.finish(ErrRegistryClosed)
	}
}

func (s *store) runResolver(ctx context.Context, res Resolver, args []any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = newPanicError(rec)
		}
	}()

	result, err := res.Fulfill(ctx, args...)
	if err != nil {
		return err
	}
	_, err = s.resolveResult(ctx, result)
	return err
}
