// Package journal records undo actions and deferred side effects for one
// top-level operation spanning several state owners (wallet, token, exchange).
//
// The journal travels in the context. Whoever starts it decides the outcome:
// Commit runs the deferred effects in order, Revert runs the undo actions
// newest first. Nested callers take a Snapshot and revert to it on failure.
package journal

import "context"

type entry struct {
	undo     func()
	deferred func()
}

type Journal struct {
	entries []entry
}

type ctxKey struct{}

// From returns the journal carried by ctx, or nil.
func From(ctx context.Context) *Journal {
	j, _ := ctx.Value(ctxKey{}).(*Journal)
	return j
}

// Begin returns the journal carried by ctx, starting a new one when absent.
// owned reports whether the caller started it and must Commit it.
func Begin(ctx context.Context) (_ context.Context, j *Journal, owned bool) {
	if j = From(ctx); j != nil {
		return ctx, j, false
	}
	j = &Journal{}
	return context.WithValue(ctx, ctxKey{}, j), j, true
}

// Undo records fn to run if the journal is reverted past this point.
func (j *Journal) Undo(fn func()) {
	j.entries = append(j.entries, entry{undo: fn})
}

// Defer records fn to run on Commit. A revert past this point drops it.
func (j *Journal) Defer(fn func()) {
	j.entries = append(j.entries, entry{deferred: fn})
}

func (j *Journal) Snapshot() int {
	return len(j.entries)
}

// RevertTo undoes every entry recorded after snap.
func (j *Journal) RevertTo(snap int) {
	for i := len(j.entries) - 1; i >= snap; i-- {
		if u := j.entries[i].undo; u != nil {
			u()
		}
	}
	j.entries = j.entries[:snap]
}

func (j *Journal) Revert() {
	j.RevertTo(0)
}

// Commit runs deferred effects in recording order and resets the journal.
func (j *Journal) Commit() {
	entries := j.entries
	j.entries = nil
	for _, e := range entries {
		if e.deferred != nil {
			e.deferred()
		}
	}
}
