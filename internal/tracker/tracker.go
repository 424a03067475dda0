// Package tracker accumulates per-session change records. A session spans
// one busy interval of the agent: it opens when busy flips true, compares
// every tick against the baseline frozen at open, and closes when busy
// flips false.
package tracker

import (
	"github.com/openpreview/openpreview/internal/snapshot"
	"github.com/openpreview/openpreview/pkg/types"
)

// Tracker detects file changes during agent work sessions. Each visible
// path yields at most one record per session: the first time it appears
// ("new") or first differs from its baseline value ("modified"). Later
// edits to an already-detected path advance the comparison value silently.
//
// Not safe for concurrent use; the owning session serializes access.
type Tracker struct {
	busy       bool
	baseline   map[string]string
	comparison map[string]string
	detected   map[string]bool
	records    []types.ChangeRecord
	latest     *types.ChangeRecord
}

func New() *Tracker {
	return &Tracker{baseline: make(map[string]string)}
}

// Apply folds one tick into the tracker and returns the records emitted by
// this tick, in sorted path order.
func (t *Tracker) Apply(snap snapshot.Snapshot, busy bool) []types.ChangeRecord {
	if busy && !t.busy {
		t.begin()
	}

	var emitted []types.ChangeRecord
	if busy {
		emitted = t.scan(snap)
	} else {
		if t.busy {
			// Session close: keep the record list, drop the latest
			// pointer, and re-baseline from the final snapshot.
			t.latest = nil
		}
		t.baseline = snap.VisibleContents()
	}

	t.busy = busy
	return emitted
}

func (t *Tracker) begin() {
	t.comparison = make(map[string]string, len(t.baseline))
	for p, c := range t.baseline {
		t.comparison[p] = c
	}
	t.detected = make(map[string]bool)
	t.records = nil
	t.latest = nil
}

func (t *Tracker) scan(snap snapshot.Snapshot) []types.ChangeRecord {
	var emitted []types.ChangeRecord
	for _, p := range snap.VisiblePaths() {
		cur, _ := snap.Get(p)
		if t.detected[p] {
			t.comparison[p] = cur
			continue
		}

		prev, known := t.comparison[p]
		var rec types.ChangeRecord
		switch {
		case !known:
			rec = types.ChangeRecord{Path: p, Kind: types.ChangeKindNew}
		case cur != prev:
			rec = types.ChangeRecord{Path: p, Kind: types.ChangeKindModified, PreviousContent: prev}
		default:
			continue
		}

		t.comparison[p] = cur
		t.detected[p] = true
		t.records = append(t.records, rec)
		emitted = append(emitted, rec)
		last := rec
		t.latest = &last
	}
	return emitted
}

// Records returns a copy of the session's accumulated records. After a
// session closes the list is retained until the next one opens.
func (t *Tracker) Records() []types.ChangeRecord {
	out := make([]types.ChangeRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Latest returns the most recent record of the open session, or nil when
// idle or nothing has been detected yet.
func (t *Tracker) Latest() *types.ChangeRecord {
	if t.latest == nil {
		return nil
	}
	rec := *t.latest
	return &rec
}

// Busy reports whether a session is open.
func (t *Tracker) Busy() bool {
	return t.busy
}

// Count returns the number of records in the current or most recent
// session.
func (t *Tracker) Count() int {
	return len(t.records)
}
