package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/dshills/datakit/internal/app"
	"github.com/dshills/datakit/internal/query"
)

// printer writes command output as JSON.
type printer struct {
	w       io.Writer
	compact bool
}

func (p *printer) print(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if !p.compact {
		b = pretty.Pretty(b)
	} else {
		b = append(b, '\n')
	}
	_, err = p.w.Write(b)
	return err
}

// parseArgs decodes each argument as JSON, keeping it as a string when it
// is not valid JSON.
func parseArgs(raw []string) []any {
	out := make([]any, len(raw))
	for i, s := range raw {
		if gjson.Valid(s) {
			out[i] = gjson.Parse(s).Value()
		} else {
			out[i] = s
		}
	}
	return out
}

func cmdSelect(a *app.Application, out *printer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: select STORE SELECTOR [ARG...]", errUsage)
	}
	sel, err := a.Registry().Select(args[0])
	if err != nil {
		return err
	}
	v, err := sel.Call(args[1], parseArgs(args[2:])...)
	if err != nil {
		return err
	}
	return out.print(v)
}

func cmdResolve(ctx context.Context, a *app.Application, out *printer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: resolve STORE SELECTOR [ARG...]", errUsage)
	}
	sel, err := a.Registry().Select(args[0])
	if err != nil {
		return err
	}
	v, err := sel.ResolveSelect(ctx, args[1], parseArgs(args[2:])...)
	if err != nil {
		return err
	}
	return out.print(v)
}

func cmdDispatch(ctx context.Context, a *app.Application, out *printer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: dispatch STORE ACTION [ARG...]", errUsage)
	}
	r := a.Registry()
	acts, err := r.Dispatch(args[0])
	if err != nil {
		return err
	}
	v, err := acts.Call(ctx, args[1], parseArgs(args[2:])...)
	if err != nil {
		return err
	}
	sel, err := r.Select(args[0])
	if err != nil {
		return err
	}
	return out.print(map[string]any{"result": v, "state": sel.State()})
}

func cmdQuery(a *app.Application, out *printer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: query STORE EXPR [ARG...]", errUsage)
	}
	v, err := query.Run(a.Registry(), args[0], args[1], parseArgs(args[2:])...)
	if err != nil {
		return err
	}
	return out.print(v)
}
