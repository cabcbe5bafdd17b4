package entities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/dshills/datakit/internal/data"
)

// Fetcher loads a record the store does not hold yet.
type Fetcher interface {
	FetchRecord(ctx context.Context, kind, name string, id any) (map[string]any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, kind, name string, id any) (map[string]any, error)

// FetchRecord calls f.
func (f FetcherFunc) FetchRecord(ctx context.Context, kind, name string, id any) (map[string]any, error) {
	return f(ctx, kind, name, id)
}

// FileFetcher reads records from JSON files laid out as
// <dir>/<kind>/<name>.json, each holding an array of records.
type FileFetcher struct {
	dir string
}

// NewFileFetcher creates a FileFetcher rooted at dir.
func NewFileFetcher(dir string) *FileFetcher {
	return &FileFetcher{dir: dir}
}

// FetchRecord returns the record whose id matches, or ErrRecordNotFound.
func (f *FileFetcher) FetchRecord(ctx context.Context, kind, name string, id any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.dir, kind, name+".json")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s %v: %w", kind, name, id, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("read %s: invalid JSON", path)
	}

	want := recordKey(id)
	var found map[string]any
	gjson.ParseBytes(content).ForEach(func(_, item gjson.Result) bool {
		key := item.Get(KeyField)
		if key.Exists() && recordKey(key.Value()) == want {
			found, _ = item.Value().(map[string]any)
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("%s/%s %v: %w", kind, name, id, ErrRecordNotFound)
	}
	return found, nil
}

// recordResolver fetches a missing record and receives it. The fetch runs
// as a routine so it observes the registry's cancellation.
func (s *Store) recordResolver() data.Resolver {
	return data.Resolver{
		IsFulfilled: func(state data.State, args ...any) bool {
			kind, name, id, err := recordArgs("getEntityRecord", args)
			return err != nil || lookupRecord(state, kind, name, id) != nil
		},
		Fulfill: func(_ context.Context, args ...any) (data.Result, error) {
			kind, name, id, err := recordArgs("getEntityRecord", args)
			if err != nil {
				return nil, err
			}
			return data.Routine(func(yield data.Yield) (any, error) {
				rec, err := yield(data.Await(func(ctx context.Context) (any, error) {
					return s.fetcher.FetchRecord(ctx, kind, name, id)
				}))
				if err != nil {
					return nil, err
				}
				return yield(data.DispatchTo("", "receiveEntityRecords", kind, name, rec))
			}), nil
		},
	}
}
