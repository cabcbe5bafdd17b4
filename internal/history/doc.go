// Package history provides undo/redo tracking for field-level edits.
//
// A Manager keeps a linear stack of committed records and a cursor into it.
// Each Record is one undo step and may touch several entities at once:
//
//	m := history.NewManager()
//
//	m.AddRecord(history.Record{{
//	    ID:      postID,
//	    Changes: map[string]history.Change{"title": {From: "a", To: "b"}},
//	}}, false)
//
//	rec := m.Undo() // apply each Change.From
//	rec = m.Redo()  // apply each Change.To
//
// # Staged Records
//
// Edits added with staged=true accumulate into a single pending record
// instead of creating an undo step each. Changes to the same ID and field
// keep the first From and the latest To. The pending record is committed as
// its own step by the next non-staged AddRecord (a nil record just commits)
// or by Undo.
//
// # Linear History
//
// Adding a record after one or more undos discards the redo tail. Changes
// whose From equals To are dropped at commit time, and records left empty
// are not pushed.
package history
