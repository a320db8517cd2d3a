package schedule

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// ContentHash hashes the normalized snapshot content, rendered as fixed-width
// hex. Stored alongside the snapshot so the next run can short-circuit
// diffing when nothing changed.
func (s Snapshot) ContentHash() string {
	cp := Snapshot{Intervals: append([]Interval(nil), s.Intervals...)}
	cp.Normalize()
	b, err := json.Marshal(cp.Intervals)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", hashBytes(b))
}
