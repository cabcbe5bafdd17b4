package entities

import (
	"context"
	"fmt"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/history"
)

// EditOptions qualifies an edit.
type EditOptions struct {
	// UndoIgnore keeps the edit out of the undo history.
	UndoIgnore bool

	// IsCached stages the edit: consecutive cached edits become one undo
	// step once the next regular edit, createUndoLevel or undo commits
	// them.
	IsCached bool
}

func editOptions(v any) (EditOptions, error) {
	switch o := v.(type) {
	case nil:
		return EditOptions{}, nil
	case EditOptions:
		return o, nil
	case *EditOptions:
		if o == nil {
			return EditOptions{}, nil
		}
		return *o, nil
	case map[string]any:
		undoIgnore, _ := o["undoIgnore"].(bool)
		isCached, _ := o["isCached"].(bool)
		return EditOptions{UndoIgnore: undoIgnore, IsCached: isCached}, nil
	default:
		return EditOptions{}, fmt.Errorf("edit options must be EditOptions or an object, got %T", v)
	}
}

// toRecords accepts one record or a list of records.
func toRecords(v any) ([]map[string]any, error) {
	var list []any
	switch r := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		list = []any{r}
	case []map[string]any:
		list = make([]any, len(r))
		for i := range r {
			list[i] = r[i]
		}
	case []any:
		list = r
	default:
		return nil, fmt.Errorf("records must be an object or a list, got %T", v)
	}

	recs := make([]map[string]any, 0, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d: want an object, got %T", i, item)
		}
		if rec[KeyField] == nil {
			return nil, fmt.Errorf("record %d: %w", i, ErrMissingKey)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func receiveEntityRecords(args ...any) (data.Result, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("receiveEntityRecords: want kind, name and records, got %d arguments", len(args))
	}
	kind, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("receiveEntityRecords: kind must be a string, got %T", args[0])
	}
	name, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("receiveEntityRecords: name must be a string, got %T", args[1])
	}
	recs, err := toRecords(args[2])
	if err != nil {
		return nil, fmt.Errorf("receiveEntityRecords: %w", err)
	}
	return data.NewAction(ActionReceiveRecords, "kind", kind, "name", name, "records", recs), nil
}

func clearEntityRecordEdits(args ...any) (data.Result, error) {
	kind, name, id, err := recordArgs("clearEntityRecordEdits", args)
	if err != nil {
		return nil, err
	}
	return data.NewAction(ActionClearEdits, "kind", kind, "name", name, "id", id), nil
}

// editEntityRecord applies edits to the edited record and records the
// change as an undo step.
func (s *Store) editEntityRecord(args ...any) (data.Result, error) {
	kind, name, id, err := recordArgs("editEntityRecord", args)
	if err != nil {
		return nil, err
	}
	if len(args) < 4 {
		return nil, fmt.Errorf("editEntityRecord: edits are required")
	}
	edits, ok := args[3].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("editEntityRecord: edits must be an object, got %T", args[3])
	}
	var rawOpts any
	if len(args) > 4 {
		rawOpts = args[4]
	}
	opts, err := editOptions(rawOpts)
	if err != nil {
		return nil, fmt.Errorf("editEntityRecord: %w", err)
	}

	return data.Thunk(func(ctx context.Context, api data.ThunkAPI) (any, error) {
		state := api.State()
		record := lookupRecord(state, kind, name, id)
		if record == nil {
			return nil, fmt.Errorf("edit %s/%s %v: %w", kind, name, id, ErrRecordNotFound)
		}
		edited := editedRecord(state, kind, name, id)

		changes := make(map[string]history.Change, len(edits))
		for field, to := range edits {
			changes[field] = history.Change{From: edited[field], To: to}
		}

		action := data.NewAction(ActionEditRecord,
			"kind", kind, "name", name, "id", id, "edits", edits, "record", record)
		if _, err := api.Dispatch.Dispatch(ctx, action); err != nil {
			return nil, err
		}

		if !opts.UndoIgnore {
			s.history.AddRecord(history.Record{{
				ID:      RecordID{Kind: kind, Name: name, Key: recordKey(id)},
				Changes: changes,
			}}, opts.IsCached)
			return nil, s.syncHistory(ctx, api)
		}
		return nil, nil
	}), nil
}

func (s *Store) undo(...any) (data.Result, error) {
	return data.Thunk(func(ctx context.Context, api data.ThunkAPI) (any, error) {
		rec := s.history.Undo()
		if rec == nil {
			return false, s.syncHistory(ctx, api)
		}
		s.logger.Debug("undo", "entities", len(rec))
		err := api.Registry.Batch(ctx, func(ctx context.Context) error {
			if err := s.apply(ctx, api, rec, func(c history.Change) any { return c.From }); err != nil {
				return err
			}
			return s.syncHistory(ctx, api)
		})
		return err == nil, err
	}), nil
}

func (s *Store) redo(...any) (data.Result, error) {
	return data.Thunk(func(ctx context.Context, api data.ThunkAPI) (any, error) {
		rec := s.history.Redo()
		if rec == nil {
			return false, nil
		}
		s.logger.Debug("redo", "entities", len(rec))
		err := api.Registry.Batch(ctx, func(ctx context.Context) error {
			if err := s.apply(ctx, api, rec, func(c history.Change) any { return c.To }); err != nil {
				return err
			}
			return s.syncHistory(ctx, api)
		})
		return err == nil, err
	}), nil
}

// createUndoLevel commits staged edits as their own undo step.
func (s *Store) createUndoLevel(...any) (data.Result, error) {
	return data.Thunk(func(ctx context.Context, api data.ThunkAPI) (any, error) {
		s.history.AddRecord(nil, false)
		return nil, s.syncHistory(ctx, api)
	}), nil
}

// apply dispatches one edit per record of rec, using pick to choose the
// side of each change. These edits are not recorded.
func (s *Store) apply(ctx context.Context, api data.ThunkAPI, rec history.Record, pick func(history.Change) any) error {
	state := api.State()
	for _, c := range rec {
		id, ok := c.ID.(RecordID)
		if !ok {
			continue
		}
		edits := make(map[string]any, len(c.Changes))
		for field, ch := range c.Changes {
			edits[field] = pick(ch)
		}
		action := data.NewAction(ActionEditRecord,
			"kind", id.Kind, "name", id.Name, "id", id.Key, "edits", edits,
			"record", lookupRecord(state, id.Kind, id.Name, id.Key))
		if _, err := api.Dispatch.Dispatch(ctx, action); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) syncHistory(ctx context.Context, api data.ThunkAPI) error {
	_, err := api.Dispatch.Dispatch(ctx, data.NewAction(ActionHistoryChanged,
		"hasUndo", s.history.HasUndo(), "hasRedo", s.history.HasRedo()))
	return err
}
