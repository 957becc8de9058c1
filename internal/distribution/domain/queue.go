// Package domain holds the pure queue rotation model. Nothing here touches
// the database, the clock, or the network; the service layer supplies those.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is one vendor's position in a unit's rotation. A vendor may
// appear more than once in the same queue; duplicated entries weight the
// rotation in that vendor's favor and always carry distinct sequence numbers.
type QueueEntry struct {
	ID                 uuid.UUID
	VendorID           uuid.UUID
	DisplayName        string
	Sequence           int
	TotalDistributions int
	AbsenceReturnAt    *time.Time
}

// EligibleAt reports whether the entry may receive a lead at the given time.
// No absence and an already-expired absence are treated identically.
func (e QueueEntry) EligibleAt(now time.Time) bool {
	return e.AbsenceReturnAt == nil || !now.Before(*e.AbsenceReturnAt)
}

// UnitQueue is the ordered rotation for one sales unit.
type UnitQueue struct {
	UnitID  uuid.UUID
	Active  bool
	Entries []QueueEntry
}

// Eligible returns the entries currently allowed to receive a lead,
// preserving their order.
func Eligible(entries []QueueEntry, now time.Time) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.EligibleAt(now) {
			out = append(out, e)
		}
	}
	return out
}

// SelectNext picks the eligible entry with the lowest sequence, the vendor
// who has waited longest since last being assigned. The second return is
// false when no entry is eligible.
func SelectNext(entries []QueueEntry, now time.Time) (QueueEntry, bool) {
	var best QueueEntry
	found := false
	for _, e := range entries {
		if !e.EligibleAt(now) {
			continue
		}
		if !found || e.Sequence < best.Sequence {
			best = e
			found = true
		}
	}
	return best, found
}

// Rotate advances the rotation past the selected entry: the entry's
// distribution counter increments and it moves to the tail of the rotation,
// behind every other entry including absent ones. Absent vendors keep their
// relative slot so they resume where they left off. The result is renumbered
// densely 1..N.
func Rotate(entries []QueueEntry, selectedID uuid.UUID) []QueueEntry {
	rotated := make([]QueueEntry, 0, len(entries))
	var selected *QueueEntry

	for _, e := range entries {
		if e.ID == selectedID && selected == nil {
			picked := e
			picked.TotalDistributions++
			selected = &picked
			continue
		}
		rotated = append(rotated, e)
	}

	if selected != nil {
		rotated = append(rotated, *selected)
	}

	return Renumber(rotated)
}

// Renumber assigns dense 1..N sequence numbers in slice order. Caller order is
// authoritative; caller-supplied sequence values are not trusted.
func Renumber(entries []QueueEntry) []QueueEntry {
	out := make([]QueueEntry, len(entries))
	for i, e := range entries {
		e.Sequence = i + 1
		out[i] = e
	}
	return out
}

// HasDenseSequences reports whether the entries' sequences form the
// permutation 1..N in slice order after sorting by sequence. Used by tests
// and repository sanity checks.
func HasDenseSequences(entries []QueueEntry) bool {
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Sequence < 1 || e.Sequence > len(entries) || seen[e.Sequence] {
			return false
		}
		seen[e.Sequence] = true
	}
	return true
}
