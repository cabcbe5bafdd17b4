package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/dshills/datakit/internal/app"
	"github.com/dshills/datakit/internal/query"
)

// stepFile is a scripted sequence of registry operations:
//
//	steps:
//	  - store: core/preferences
//	    dispatch: set
//	    args: [core/edit-post, fixedToolbar, true]
//	  - store: core/preferences
//	    select: get
//	    args: [core/edit-post, fixedToolbar]
//	    expect: true
type stepFile struct {
	Steps []step `yaml:"steps"`
}

// step runs exactly one of dispatch, select, resolve or query.
type step struct {
	Name     string    `yaml:"name"`
	Store    string    `yaml:"store"`
	Dispatch string    `yaml:"dispatch"`
	Select   string    `yaml:"select"`
	Resolve  string    `yaml:"resolve"`
	Query    string    `yaml:"query"`
	Args     []any     `yaml:"args"`
	Expect   yaml.Node `yaml:"expect"`
}

type stepResult struct {
	Step  string `json:"step"`
	Value any    `json:"value"`
}

var errExpectation = errors.New("expectation failed")

func runSteps(ctx context.Context, a *app.Application, out *printer, r io.Reader) error {
	var file stepFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return fmt.Errorf("parse steps: %w", err)
	}

	results := make([]stepResult, 0, len(file.Steps))
	for i, s := range file.Steps {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		v, err := runStep(ctx, a, s)
		if err != nil {
			return fmt.Errorf("step %s: %w", label, err)
		}
		if s.Expect.Kind != 0 {
			var want any
			if err := s.Expect.Decode(&want); err != nil {
				return fmt.Errorf("step %s: expect: %w", label, err)
			}
			if diff := cmp.Diff(normalize(want), normalize(v)); diff != "" {
				return fmt.Errorf("step %s: %w (-want +got):\n%s", label, errExpectation, diff)
			}
		}
		results = append(results, stepResult{Step: label, Value: v})
	}
	return out.print(results)
}

func runStep(ctx context.Context, a *app.Application, s step) (any, error) {
	r := a.Registry()
	ops := 0
	for _, op := range []string{s.Dispatch, s.Select, s.Resolve, s.Query} {
		if op != "" {
			ops++
		}
	}
	if ops != 1 {
		return nil, fmt.Errorf("%w: a step needs exactly one of dispatch, select, resolve or query", errUsage)
	}

	switch {
	case s.Dispatch != "":
		acts, err := r.Dispatch(s.Store)
		if err != nil {
			return nil, err
		}
		return acts.Call(ctx, s.Dispatch, s.Args...)
	case s.Query != "":
		return query.Run(r, s.Store, s.Query, s.Args...)
	}

	sel, err := r.Select(s.Store)
	if err != nil {
		return nil, err
	}
	if s.Resolve != "" {
		return sel.ResolveSelect(ctx, s.Resolve, s.Args...)
	}
	return sel.Call(s.Select, s.Args...)
}

// normalize maps a value onto its JSON form so numbers compare equal
// regardless of their Go type.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return gjson.ParseBytes(b).Value()
}
