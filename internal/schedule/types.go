// Package schedule holds the normalized outage-schedule model: service kinds,
// outage intervals, parsed snapshots and the semantic diff between them.
//
// Everything here is pure data + pure functions; no I/O.
package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Kind identifies the utility service an interval belongs to.
type Kind string

const (
	KindElectricity Kind = "electricity"
	KindColdWater   Kind = "cold_water"
	KindHotWater    Kind = "hot_water"
)

// Kinds returns all supported service kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindElectricity, KindHotWater, KindColdWater}
}

func (k Kind) Valid() bool {
	switch k {
	case KindElectricity, KindColdWater, KindHotWater:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Interval is one announced service interruption window.
//
// A zero End means "open-ended": the source announced a start but no finish.
// Description is informational only and does not contribute to interval
// identity (see Key/Fingerprint).
type Interval struct {
	Kind        Kind      `json:"kind"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end,omitzero"`
	Description string    `json:"description,omitempty"`
}

func (iv Interval) OpenEnded() bool { return iv.End.IsZero() }

// key is the identity of an interval: (kind, start, end).
type key struct {
	kind       Kind
	start, end int64
}

func (iv Interval) identity() key {
	var end int64
	if !iv.End.IsZero() {
		end = iv.End.Unix()
	}
	return key{kind: iv.Kind, start: iv.Start.Unix(), end: end}
}

// Fingerprint returns a stable short identifier for the interval identity,
// suitable as a dedup-ledger key. Description changes do not alter it.
func (iv Interval) Fingerprint() string {
	end := ""
	if !iv.End.IsZero() {
		end = iv.End.UTC().Format(time.RFC3339)
	}
	raw := string(iv.Kind) + "|" + iv.Start.UTC().Format(time.RFC3339) + "|" + end
	return fmt.Sprintf("%016x", hashBytes([]byte(raw)))
}

// Snapshot is the full parsed set of intervals for one (address, provider)
// pair at one fetch time.
type Snapshot struct {
	Intervals []Interval `json:"intervals"`
}

// Normalize sorts intervals (start asc, then kind, then end) and drops
// duplicates by identity. Parsers call this before returning a snapshot so
// downstream diffing and hashing are deterministic.
func (s *Snapshot) Normalize() {
	sortIntervals(s.Intervals)
	if len(s.Intervals) < 2 {
		return
	}
	out := s.Intervals[:1]
	for _, iv := range s.Intervals[1:] {
		if iv.identity() == out[len(out)-1].identity() {
			continue
		}
		out = append(out, iv)
	}
	s.Intervals = out
}

func sortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool {
		a, b := ivs[i], ivs[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.End.Before(b.End)
	})
}
