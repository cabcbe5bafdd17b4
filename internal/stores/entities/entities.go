// Package entities provides the core store: entity records grouped by kind
// and name, local edits layered over them, and undo/redo of those edits
// through a history.Manager.
//
// Records are maps keyed by field name and identified by their "id" field.
// Edits never modify a received record; the edited record is the received
// record with the edits applied on top.
package entities

import (
	"fmt"

	"github.com/dshills/datakit/internal/data"
	"github.com/dshills/datakit/internal/history"
	"github.com/dshills/datakit/internal/logging"
)

// StoreName is the registry name of the entities store.
const StoreName = "core"

// KeyField is the record field holding its id.
const KeyField = "id"

// Store builds the entities store configuration. Each Store owns the undo
// history of the registry it is registered on.
type Store struct {
	history *history.Manager
	fetcher Fetcher
	logger  *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithFetcher sets the source used to resolve records missing from the
// store.
func WithFetcher(f Fetcher) Option {
	return func(s *Store) {
		s.fetcher = f
	}
}

// WithHistory sets the history manager instead of creating one.
func WithHistory(m *history.Manager) Option {
	return func(s *Store) {
		if m != nil {
			s.history = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = history.NewManager()
	}
	s.logger = s.logger.WithComponent("entities")
	return s
}

// History returns the undo history.
func (s *Store) History() *history.Manager {
	return s.history
}

// Register registers the store on r under StoreName.
func (s *Store) Register(r *data.Registry) error {
	return r.RegisterStore(StoreName, s.Config())
}

// Config returns the store configuration.
func (s *Store) Config() data.StoreConfig {
	cfg := data.StoreConfig{
		Reducer: data.CombineReducers(map[string]data.Reducer{
			"records": recordsReducer,
			"order":   orderReducer,
			"edits":   editsReducer,
			"undo":    undoReducer,
		}),
		Actions: map[string]data.ActionCreator{
			"receiveEntityRecords":   receiveEntityRecords,
			"editEntityRecord":       s.editEntityRecord,
			"clearEntityRecordEdits": clearEntityRecordEdits,
			"undo":                   s.undo,
			"redo":                   s.redo,
			"createUndoLevel":        s.createUndoLevel,
		},
		Selectors: map[string]data.Selector{
			"getEntityRecord":         data.NewSelector(getEntityRecord),
			"getEditedEntityRecord":   data.NewSelector(getEditedEntityRecord),
			"getEntityRecordEdits":    data.NewSelector(getEntityRecordEdits),
			"hasEditsForEntityRecord": data.NewSelector(hasEditsForEntityRecord),
			"getEntityRecords":        data.NewSelector(getEntityRecords),
			"hasUndo":                 data.Pure(hasUndo),
			"hasRedo":                 data.Pure(hasRedo),
		},
	}
	if s.fetcher != nil {
		cfg.Resolvers = map[string]data.Resolver{
			"getEntityRecord": s.recordResolver(),
		}
	}
	return cfg
}

// RecordID identifies an edited record in the undo history.
type RecordID struct {
	Kind string
	Name string
	Key  string
}

func collectionKey(kind, name string) string {
	return kind + "/" + name
}

// recordKey normalizes an id so that 7 and 7.0 name the same record.
func recordKey(id any) string {
	return fmt.Sprint(id)
}

func recordArgs(op string, args []any) (kind, name string, id any, err error) {
	if len(args) < 3 {
		return "", "", nil, fmt.Errorf("%s: want kind, name and id, got %d arguments", op, len(args))
	}
	kind, ok := args[0].(string)
	if !ok {
		return "", "", nil, fmt.Errorf("%s: kind must be a string, got %T", op, args[0])
	}
	name, ok = args[1].(string)
	if !ok {
		return "", "", nil, fmt.Errorf("%s: name must be a string, got %T", op, args[1])
	}
	if args[2] == nil {
		return "", "", nil, fmt.Errorf("%s: id is required", op)
	}
	return kind, name, args[2], nil
}
