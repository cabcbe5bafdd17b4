package data

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Actions is the write handle of one store.
type Actions struct {
	store *store
}

// Store returns the store name.
func (a *Actions) Store() string {
	return a.store.name
}

// Call runs the named action creator with args and dispatches its result.
// For a plain action the action itself is returned; for a thunk or routine
// its return value is.
func (a *Actions) Call(ctx context.Context, name string, args ...any) (any, error) {
	creator, ok := a.store.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAction, a.store.name, name)
	}

	result, err := callCreator(creator, args)
	if err != nil {
		return nil, fmt.Errorf("action %s.%s: %w", a.store.name, name, err)
	}
	return a.store.resolveResult(ctx, result)
}

// Dispatch dispatches a result built outside the store's action creators.
func (a *Actions) Dispatch(ctx context.Context, r Result) (any, error) {
	return a.store.resolveResult(ctx, r)
}

// Has reports whether the store defines the named action creator.
func (a *Actions) Has(name string) bool {
	_, ok := a.store.actions[name]
	return ok
}

// Names returns the action creator names in sorted order.
func (a *Actions) Names() []string {
	return slices.Sorted(maps.Keys(a.store.actions))
}

// InvalidateResolution forgets the resolution of a selector for args, so
// the next call resolves again.
func (a *Actions) InvalidateResolution(selector string, args ...any) {
	a.store.meta.invalidate(selector, args)
	a.store.registry.notify(context.Background(), a.store)
}

// InvalidateResolutionForSelector forgets every resolution of a selector.
func (a *Actions) InvalidateResolutionForSelector(selector string) {
	a.store.meta.invalidateSelector(selector)
	a.store.registry.notify(context.Background(), a.store)
}

// InvalidateResolutionForStore forgets every resolution of the store.
func (a *Actions) InvalidateResolutionForStore() {
	a.store.meta.invalidateAll()
	a.store.registry.notify(context.Background(), a.store)
}

func callCreator(creator ActionCreator, args []any) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, newPanicError(rec)
		}
	}()
	return creator(args...)
}

// resolveResult is the single entry point turning an action creator's result
// into effects.
func (s *store) resolveResult(ctx context.Context, r Result) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch v := r.(type) {
	case nil:
		return nil, nil
	case Action:
		if err := s.dispatchAction(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	case Thunk:
		return s.runThunk(ctx, v)
	case Routine:
		return s.runRoutine(ctx, v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedResult, r)
	}
}

// dispatchAction passes a through the registry's dispatch middleware to the
// reducer.
func (s *store) dispatchAction(ctx context.Context, a Action) error {
	next := func(ctx context.Context, _ string, a Action) error {
		return s.reduce(ctx, a)
	}
	mws := s.registry.middleware()
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}

	if err := next(ctx, s.name, a); err != nil {
		s.logger.Debug("dispatch failed", "action", a.Type, "error", err)
		return err
	}
	return nil
}

func (s *store) runThunk(ctx context.Context, th Thunk) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value, err = nil, newPanicError(rec)
		}
	}()

	api := ThunkAPI{
		Select:   &Selectors{store: s},
		Dispatch: &Actions{store: s},
		Registry: s.registry,
		store:    s,
	}
	return th(ctx, api)
}

// runRoutine drives a routine, resolving each yielded control in order.
func (s *store) runRoutine(ctx context.Context, rt Routine) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value, err = nil, newPanicError(rec)
		}
	}()

	yield := func(c Control) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := s.resolveControl(ctx, c)
		if err != nil {
			return nil, &ControlError{Store: s.name, Control: controlName(c), Err: err}
		}
		return v, nil
	}
	return rt(yield)
}

func (s *store) resolveControl(ctx context.Context, c Control) (any, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil

	case Action:
		if err := s.dispatchAction(ctx, v); err != nil {
			return nil, err
		}
		return v, nil

	case SelectControl:
		sel, err := s.selectorsFor(v.Store)
		if err != nil {
			return nil, err
		}
		return sel.Call(v.Selector, v.Args...)

	case ResolveSelectControl:
		sel, err := s.selectorsFor(v.Store)
		if err != nil {
			return nil, err
		}
		return sel.ResolveSelect(ctx, v.Selector, v.Args...)

	case DispatchControl:
		target := s
		if v.Store != "" && v.Store != s.name {
			var err error
			if target, err = s.registry.lookup(v.Store); err != nil {
				return nil, err
			}
		}
		return (&Actions{store: target}).Call(ctx, v.Action, v.Args...)

	case AwaitControl:
		if v == nil {
			return nil, nil
		}
		return v(ctx)

	case CustomControl:
		h, ok := s.controls[v.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownControl, v.Type)
		}
		return h(ctx, v)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownControl, c)
	}
}

func (s *store) selectorsFor(name string) (*Selectors, error) {
	if name == "" || name == s.name {
		return &Selectors{store: s}, nil
	}
	target, err := s.registry.lookup(name)
	if err != nil {
		return nil, err
	}
	return &Selectors{store: target}, nil
}
