package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func makeQueue(names ...string) []QueueEntry {
	entries := make([]QueueEntry, len(names))
	for i, name := range names {
		entries[i] = QueueEntry{
			ID:          uuid.New(),
			VendorID:    uuid.New(),
			DisplayName: name,
			Sequence:    i + 1,
		}
	}
	return entries
}

func names(entries []QueueEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DisplayName
	}
	return out
}

func TestSelectNext_PicksLowestSequence(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3")
	now := time.Now()

	selected, ok := SelectNext(entries, now)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.DisplayName != "v1" {
		t.Fatalf("expected v1, got %s", selected.DisplayName)
	}
}

func TestSelectNext_SkipsAbsentVendors(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3")
	now := time.Now()
	returnAt := now.Add(24 * time.Hour)
	entries[0].AbsenceReturnAt = &returnAt

	selected, ok := SelectNext(entries, now)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.DisplayName != "v2" {
		t.Fatalf("expected v2 while v1 is absent, got %s", selected.DisplayName)
	}
}

func TestSelectNext_ExpiredAbsenceIsEligible(t *testing.T) {
	entries := makeQueue("v1", "v2")
	now := time.Now()
	returned := now.Add(-time.Minute)
	entries[0].AbsenceReturnAt = &returned

	selected, ok := SelectNext(entries, now)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.DisplayName != "v1" {
		t.Fatalf("expected v1 after absence expired, got %s", selected.DisplayName)
	}
}

func TestSelectNext_AbsenceBoundaryIsInclusive(t *testing.T) {
	entries := makeQueue("v1")
	now := time.Now()
	entries[0].AbsenceReturnAt = &now

	if _, ok := SelectNext(entries, now); !ok {
		t.Fatal("expected vendor eligible exactly at the return timestamp")
	}
}

func TestSelectNext_NoEligibleVendor(t *testing.T) {
	entries := makeQueue("v1", "v2")
	now := time.Now()
	returnAt := now.Add(time.Hour)
	entries[0].AbsenceReturnAt = &returnAt
	entries[1].AbsenceReturnAt = &returnAt

	if _, ok := SelectNext(entries, now); ok {
		t.Fatal("expected no selection when all vendors are absent")
	}
}

func TestRotate_MovesSelectedToTail(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3")

	rotated := Rotate(entries, entries[0].ID)

	got := names(rotated)
	want := []string{"v2", "v3", "v1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if rotated[2].TotalDistributions != 1 {
		t.Fatalf("expected counter 1 on rotated vendor, got %d", rotated[2].TotalDistributions)
	}
	if !HasDenseSequences(rotated) {
		t.Fatalf("expected dense sequences after rotation, got %v", rotated)
	}
}

func TestRotate_AbsentVendorKeepsRelativeSlot(t *testing.T) {
	// v1 absent, v2 takes the lead, v1 stays ahead of v3 for when it returns.
	entries := makeQueue("v1", "v2", "v3")
	now := time.Now()
	returnAt := now.Add(time.Hour)
	entries[0].AbsenceReturnAt = &returnAt

	selected, ok := SelectNext(entries, now)
	if !ok {
		t.Fatal("expected a selection")
	}
	rotated := Rotate(entries, selected.ID)

	got := names(rotated)
	want := []string{"v1", "v3", "v2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestRotate_FullCycleIsFair(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3", "v4")
	now := time.Now()

	counts := make(map[string]int)
	for i := 0; i < 40; i++ {
		selected, ok := SelectNext(entries, now)
		if !ok {
			t.Fatal("expected a selection")
		}
		counts[selected.DisplayName]++
		entries = Rotate(entries, selected.ID)

		if !HasDenseSequences(entries) {
			t.Fatalf("dense sequence invariant broken after %d rotations: %v", i+1, entries)
		}
	}

	for name, n := range counts {
		if n != 10 {
			t.Fatalf("expected each vendor to receive 10 leads, %s got %d", name, n)
		}
	}
}

func TestRotate_DuplicateVendorEntriesWeightRotation(t *testing.T) {
	entries := makeQueue("v1", "v2", "v1b")
	entries[2].VendorID = entries[0].VendorID
	now := time.Now()

	counts := make(map[uuid.UUID]int)
	for i := 0; i < 30; i++ {
		selected, ok := SelectNext(entries, now)
		if !ok {
			t.Fatal("expected a selection")
		}
		counts[selected.VendorID]++
		entries = Rotate(entries, selected.ID)
	}

	// v1 holds two of three slots and must receive twice as many leads.
	var v1, v2 uuid.UUID
	for _, e := range entries {
		if e.DisplayName == "v2" {
			v2 = e.VendorID
		} else {
			v1 = e.VendorID
		}
	}
	if counts[v1] != 20 || counts[v2] != 10 {
		t.Fatalf("expected 20/10 split for weighted rotation, got %d/%d", counts[v1], counts[v2])
	}
}

func TestRenumber_IgnoresIncomingSequences(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3")
	entries[0].Sequence = 99
	entries[1].Sequence = 0
	entries[2].Sequence = -5

	out := Renumber(entries)

	for i, e := range out {
		if e.Sequence != i+1 {
			t.Fatalf("expected sequence %d at index %d, got %d", i+1, i, e.Sequence)
		}
	}
}

func TestHasDenseSequences(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3")
	if !HasDenseSequences(entries) {
		t.Fatal("expected fresh queue to be dense")
	}

	entries[1].Sequence = 5
	if HasDenseSequences(entries) {
		t.Fatal("expected gap to be detected")
	}

	entries[1].Sequence = 1
	if HasDenseSequences(entries) {
		t.Fatal("expected duplicate to be detected")
	}
}

func TestEligible_PreservesOrder(t *testing.T) {
	entries := makeQueue("v1", "v2", "v3")
	now := time.Now()
	returnAt := now.Add(time.Hour)
	entries[1].AbsenceReturnAt = &returnAt

	eligible := Eligible(entries, now)
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible entries, got %d", len(eligible))
	}
	if eligible[0].DisplayName != "v1" || eligible[1].DisplayName != "v3" {
		t.Fatalf("expected [v1 v3], got %v", names(eligible))
	}
}
