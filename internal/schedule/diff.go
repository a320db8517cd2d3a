package schedule

// ChangeSet is the semantic difference between the previously stored snapshot
// and a freshly parsed one. Buckets are sorted by start timestamp ascending
// so downstream rendering is deterministic.
//
// Baseline marks the first-ever check for a pair: every current interval is
// reported as added, but the notifier suppresses sending for baseline runs to
// avoid a notification storm on initial deployment.
type ChangeSet struct {
	Added     []Interval
	Removed   []Interval
	Unchanged []Interval
	Baseline  bool
}

func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Diff compares snapshots as sets keyed by (kind, start, end).
// Description-only changes do not move an interval out of Unchanged;
// the unchanged bucket carries the current description.
//
// previous == nil means no stored snapshot exists yet (first run).
func Diff(previous *Snapshot, current Snapshot) ChangeSet {
	cs := ChangeSet{}
	if previous == nil {
		cs.Baseline = true
		cs.Added = append(cs.Added, current.Intervals...)
		sortIntervals(cs.Added)
		return cs
	}

	prevByKey := make(map[key]Interval, len(previous.Intervals))
	for _, iv := range previous.Intervals {
		prevByKey[iv.identity()] = iv
	}

	seen := make(map[key]bool, len(current.Intervals))
	for _, iv := range current.Intervals {
		k := iv.identity()
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := prevByKey[k]; ok {
			cs.Unchanged = append(cs.Unchanged, iv)
		} else {
			cs.Added = append(cs.Added, iv)
		}
	}
	for _, iv := range previous.Intervals {
		if !seen[iv.identity()] {
			cs.Removed = append(cs.Removed, iv)
		}
	}

	sortIntervals(cs.Added)
	sortIntervals(cs.Removed)
	sortIntervals(cs.Unchanged)
	return cs
}
