/*
temporal.go - Time-aware values resolved against a shared Clock

PURPOSE:
  Some loan terms change over the life of a loan (the fine rate, the grace
  period). A Temporal keeps every version with the date it takes effect and
  answers "what is the value now?" using the loan's Clock.

RESOLUTION:
  Resolve() returns the value of the latest entry whose effective date is
  <= clock.Now(). If that entry is a tombstone (Delete), the value is absent.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Update and Delete add entries; nothing is edited or removed
  2. SORTED: entries are kept in effective-date order; equal dates keep
     insertion order, so the later write wins
  3. SHARED CLOCK: Rebind gives the copy a different Clock; a copy never
     silently gets a private clone of the old one

SEE ALSO:
  - time.go: Clock
  - ledger/loan.go: fine rate and grace period
*/
package finance

import (
	"sort"
	"time"
)

// TemporalEntry is one version of a time-aware value.
type TemporalEntry[T any] struct {
	EffectiveAt time.Time
	Value       T
	Deleted     bool
}

// Temporal is an append-only, date-sorted history of a value.
type Temporal[T any] struct {
	clock   *Clock
	entries []TemporalEntry[T]
}

// NewTemporal creates a value that holds initial from effective onwards.
func NewTemporal[T any](clock *Clock, effective time.Time, initial T) *Temporal[T] {
	v := &Temporal[T]{clock: clock}
	v.insert(TemporalEntry[T]{EffectiveAt: Normalize(effective), Value: initial})
	return v
}

// Resolve returns the value in effect at the clock's now.
func (v *Temporal[T]) Resolve() (T, bool) {
	return v.At(v.clock.Now())
}

// At returns the value in effect at t.
func (v *Temporal[T]) At(t time.Time) (T, bool) {
	var zero T
	i := sort.Search(len(v.entries), func(i int) bool {
		return v.entries[i].EffectiveAt.After(t)
	})
	if i == 0 {
		return zero, false
	}
	e := v.entries[i-1]
	if e.Deleted {
		return zero, false
	}
	return e.Value, true
}

// Update records value as effective from effective onwards.
func (v *Temporal[T]) Update(effective time.Time, value T) {
	v.insert(TemporalEntry[T]{EffectiveAt: Normalize(effective), Value: value})
}

// Delete records a tombstone: the value is absent from effective onwards.
func (v *Temporal[T]) Delete(effective time.Time) {
	v.insert(TemporalEntry[T]{EffectiveAt: Normalize(effective), Deleted: true})
}

// History returns a copy of every entry in effective order.
func (v *Temporal[T]) History() []TemporalEntry[T] {
	out := make([]TemporalEntry[T], len(v.entries))
	copy(out, v.entries)
	return out
}

// Clock returns the clock this value resolves against.
func (v *Temporal[T]) Clock() *Clock { return v.clock }

// Rebind returns an independent copy of the history bound to clock.
func (v *Temporal[T]) Rebind(clock *Clock) *Temporal[T] {
	return &Temporal[T]{clock: clock, entries: v.History()}
}

func (v *Temporal[T]) insert(e TemporalEntry[T]) {
	// Binary search for insertion point after any entry with the same date
	i := sort.Search(len(v.entries), func(i int) bool {
		return v.entries[i].EffectiveAt.After(e.EffectiveAt)
	})
	v.entries = append(v.entries, TemporalEntry[T]{})
	copy(v.entries[i+1:], v.entries[i:])
	v.entries[i] = e
}
