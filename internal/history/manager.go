package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries bounds the number of committed records kept.
const DefaultMaxEntries = 1000

// entry wraps a committed record with metadata.
type entry struct {
	record    Record
	timestamp time.Time
}

// Manager tracks committed records and a cursor into them.
// The cursor always satisfies 0 <= cursor <= len(records).
type Manager struct {
	mu sync.Mutex

	session string
	records []*entry
	cursor  int

	// Pending staged edits, not yet an undo step.
	staged Record

	maxEntries int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxEntries sets the maximum number of committed records. Oldest
// records are dropped first.
func WithMaxEntries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithSession sets the session identifier instead of generating one.
func WithSession(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.session = id
		}
	}
}

// NewManager creates an empty history.
func NewManager(opts ...Option) *Manager {
	m := &Manager{maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(m)
	}
	if m.session == "" {
		m.session = uuid.NewString()
	}
	return m
}

// Session returns the identifier of the editing session this history
// belongs to.
func (m *Manager) Session() string {
	return m.session
}

// AddRecord adds an edit to the history.
//
// With staged=true the changes are merged into the pending staged record.
// With staged=false the pending staged record is committed first, then
// record is committed as a new step, discarding any redo tail. A nil or
// no-op record only commits what was staged.
func (m *Manager) AddRecord(record Record, staged bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if staged {
		if record.IsEmpty() {
			return
		}
		for _, c := range record {
			m.staged = m.staged.merge(c)
		}
		return
	}

	m.commitStagedLocked()
	m.pushLocked(record)
}

// commitStagedLocked turns the pending staged record into a step.
func (m *Manager) commitStagedLocked() {
	if len(m.staged) == 0 {
		return
	}
	staged := m.staged
	m.staged = nil
	m.pushLocked(staged)
}

// pushLocked commits record at the cursor.
func (m *Manager) pushLocked(record Record) {
	record = record.compact()
	if len(record) == 0 {
		return
	}

	// Drop pending redos.
	for i := m.cursor; i < len(m.records); i++ {
		m.records[i] = nil
	}
	m.records = m.records[:m.cursor]

	m.records = append(m.records, &entry{record: record, timestamp: time.Now()})

	if len(m.records) > m.maxEntries {
		excess := len(m.records) - m.maxEntries
		m.records = m.records[excess:]
	}
	m.cursor = len(m.records)
}

// Undo moves the cursor back one step and returns the record to revert by
// applying each Change.From. Returns nil when there is nothing to undo.
// Pending staged edits are committed first.
func (m *Manager) Undo() Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commitStagedLocked()

	if m.cursor == 0 {
		return nil
	}
	m.cursor--
	return m.records[m.cursor].record
}

// Redo returns the record at the cursor, to re-apply by applying each
// Change.To, and advances the cursor. Returns nil when there is nothing to
// redo.
func (m *Manager) Redo() Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == len(m.records) {
		return nil
	}
	rec := m.records[m.cursor].record
	m.cursor++
	return rec
}

// HasUndo reports whether a committed step precedes the cursor. Staged
// edits are not counted until they are committed.
func (m *Manager) HasUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0
}

// HasRedo reports whether Redo would return a record.
func (m *Manager) HasRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.records)
}

// UndoCount returns the number of steps that can be undone.
func (m *Manager) UndoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// RedoCount returns the number of steps that can be redone.
func (m *Manager) RedoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records) - m.cursor
}

// HasStaged reports whether staged edits are pending.
func (m *Manager) HasStaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged) > 0
}

// State returns the stack position as one of Clean, PartiallyUndone or
// FullyUndone.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.cursor == len(m.records):
		return StateClean
	case m.cursor == 0:
		return StateFullyUndone
	default:
		return StatePartiallyUndone
	}
}

// Clear removes all history, including staged edits.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = nil
	m.cursor = 0
	m.staged = nil
}

// Info describes one committed step.
type Info struct {
	Entities  int
	Fields    int
	Timestamp time.Time
}

// UndoInfo returns info about the steps before the cursor, oldest first.
func (m *Manager) UndoInfo() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return infos(m.records[:m.cursor])
}

// RedoInfo returns info about the steps after the cursor, nearest first.
func (m *Manager) RedoInfo() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return infos(m.records[m.cursor:])
}

func infos(entries []*entry) []Info {
	result := make([]Info, len(entries))
	for i, e := range entries {
		fields := 0
		for _, c := range e.record {
			fields += len(c.Changes)
		}
		result[i] = Info{Entities: len(e.record), Fields: fields, Timestamp: e.timestamp}
	}
	return result
}

// SetMaxEntries changes the maximum number of committed records.
func (m *Manager) SetMaxEntries(max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.maxEntries = max
	if len(m.records) > max {
		excess := len(m.records) - max
		m.records = m.records[excess:]
		m.cursor -= excess
		if m.cursor < 0 {
			m.cursor = 0
		}
	}
}

// MaxEntries returns the maximum number of committed records.
func (m *Manager) MaxEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxEntries
}

// State is the position of the cursor relative to the stack.
type State int

const (
	// StateClean means the cursor is at the tip: nothing to redo.
	StateClean State = iota
	// StatePartiallyUndone means there are steps on both sides of the cursor.
	StatePartiallyUndone
	// StateFullyUndone means every step has been undone.
	StateFullyUndone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StatePartiallyUndone:
		return "partially-undone"
	case StateFullyUndone:
		return "fully-undone"
	default:
		return "unknown"
	}
}
