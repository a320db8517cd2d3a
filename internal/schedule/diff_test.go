package schedule

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", s, err)
	}
	return ts
}

func waterInterval(t *testing.T) Interval {
	return Interval{
		Kind:  KindColdWater,
		Start: mustTime(t, "2024-01-01T08:00:00Z"),
		End:   mustTime(t, "2024-01-01T14:00:00Z"),
	}
}

func electricityInterval(t *testing.T) Interval {
	return Interval{
		Kind:  KindElectricity,
		Start: mustTime(t, "2024-01-02T09:00:00Z"),
		End:   mustTime(t, "2024-01-02T12:00:00Z"),
	}
}

func TestDiffAddedRemovedUnchanged(t *testing.T) {
	t.Parallel()

	water := waterInterval(t)
	elec := electricityInterval(t)

	prev := &Snapshot{Intervals: []Interval{water}}
	cur := Snapshot{Intervals: []Interval{water, elec}}

	cs := Diff(prev, cur)
	if cs.Baseline {
		t.Fatal("diff against a stored snapshot must not be a baseline")
	}
	if len(cs.Added) != 1 || cs.Added[0].Kind != KindElectricity {
		t.Fatalf("Added = %+v, want single electricity interval", cs.Added)
	}
	if len(cs.Removed) != 0 {
		t.Fatalf("Removed = %+v, want empty", cs.Removed)
	}
	if len(cs.Unchanged) != 1 || cs.Unchanged[0].Kind != KindColdWater {
		t.Fatalf("Unchanged = %+v, want single water interval", cs.Unchanged)
	}
}

func TestDiffSwappedArgumentsInverse(t *testing.T) {
	t.Parallel()

	a := Snapshot{Intervals: []Interval{waterInterval(t)}}
	b := Snapshot{Intervals: []Interval{waterInterval(t), electricityInterval(t)}}

	ab := Diff(&a, b)
	ba := Diff(&b, a)

	if len(ab.Added) != len(ba.Removed) {
		t.Fatalf("len(diff(A,B).Added) = %d, len(diff(B,A).Removed) = %d", len(ab.Added), len(ba.Removed))
	}
	for i := range ab.Added {
		if ab.Added[i].identity() != ba.Removed[i].identity() {
			t.Fatalf("added[%d] identity mismatch: %+v vs %+v", i, ab.Added[i], ba.Removed[i])
		}
	}
	if len(ab.Removed) != len(ba.Added) {
		t.Fatalf("len(diff(A,B).Removed) = %d, len(diff(B,A).Added) = %d", len(ab.Removed), len(ba.Added))
	}
}

func TestDiffSelfIsEmpty(t *testing.T) {
	t.Parallel()

	s := Snapshot{Intervals: []Interval{waterInterval(t), electricityInterval(t)}}
	cs := Diff(&s, s)
	if !cs.Empty() {
		t.Fatalf("diff(S, S) must be empty, got added=%d removed=%d", len(cs.Added), len(cs.Removed))
	}
	if len(cs.Unchanged) != len(s.Intervals) {
		t.Fatalf("Unchanged = %d, want %d", len(cs.Unchanged), len(s.Intervals))
	}
}

func TestDiffFirstRunBaseline(t *testing.T) {
	t.Parallel()

	cur := Snapshot{Intervals: []Interval{waterInterval(t)}}
	cs := Diff(nil, cur)
	if !cs.Baseline {
		t.Fatal("first run must be flagged as baseline")
	}
	if len(cs.Added) != 1 {
		t.Fatalf("Added = %d, want 1", len(cs.Added))
	}
}

func TestDiffDescriptionChangeStaysUnchanged(t *testing.T) {
	t.Parallel()

	before := waterInterval(t)
	before.Description = "plain works"
	after := waterInterval(t)
	after.Description = "rescheduled works"

	cs := Diff(&Snapshot{Intervals: []Interval{before}}, Snapshot{Intervals: []Interval{after}})
	if !cs.Empty() {
		t.Fatalf("description-only change must not produce added/removed: %+v", cs)
	}
	if len(cs.Unchanged) != 1 || cs.Unchanged[0].Description != "rescheduled works" {
		t.Fatalf("unchanged bucket must carry the current description, got %+v", cs.Unchanged)
	}
}

func TestDiffOrderedByStart(t *testing.T) {
	t.Parallel()

	late := electricityInterval(t)
	early := Interval{Kind: KindElectricity, Start: mustTime(t, "2024-01-01T01:00:00Z")}
	cs := Diff(&Snapshot{}, Snapshot{Intervals: []Interval{late, early}})
	if len(cs.Added) != 2 || !cs.Added[0].Start.Before(cs.Added[1].Start) {
		t.Fatalf("added bucket must be sorted by start asc: %+v", cs.Added)
	}
}

func TestFingerprintIgnoresDescription(t *testing.T) {
	t.Parallel()

	a := waterInterval(t)
	b := waterInterval(t)
	b.Description = "other text"
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint must not depend on description")
	}

	c := waterInterval(t)
	c.End = time.Time{}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("open-ended interval must fingerprint differently")
	}
}

func TestContentHashStableUnderReordering(t *testing.T) {
	t.Parallel()

	a := Snapshot{Intervals: []Interval{waterInterval(t), electricityInterval(t)}}
	b := Snapshot{Intervals: []Interval{electricityInterval(t), waterInterval(t)}}
	if a.ContentHash() != b.ContentHash() {
		t.Fatal("content hash must not depend on interval order")
	}
	if a.ContentHash() == (Snapshot{}).ContentHash() {
		t.Fatal("non-empty snapshot must hash differently from empty one")
	}
}
