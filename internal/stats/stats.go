package stats

import "sort"

// RunningMean is a Welford-style streaming mean. Unlike a naive sum/count it
// does not accumulate drift over very long streams.
type RunningMean struct {
	Count int64
	Mean  float64
}

// Restore rebuilds a running mean from persisted state.
func Restore(count int64, mean float64) RunningMean {
	if count <= 0 {
		return RunningMean{}
	}
	return RunningMean{Count: count, Mean: mean}
}

// Add folds one observation into the mean.
func (m *RunningMean) Add(x float64) {
	m.Count++
	m.Mean += (x - m.Mean) / float64(m.Count)
}

// TieBreak selects how Mode resolves equal counts.
type TieBreak int

const (
	// TieEarliestSeen prefers the value observed first.
	TieEarliestSeen TieBreak = iota
	// TieMostRecent prefers the value observed last.
	TieMostRecent
	// TieLexicographic prefers the smallest value by byte order.
	TieLexicographic
)

// ModeEntry is the persisted per-value observation record of a ModeTracker.
type ModeEntry struct {
	Value     string `json:"value"`
	Count     int64  `json:"count"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

// ModeTracker counts string observations and reports the mode with a
// deterministic tie-break. Naive map iteration would make the mode depend on
// iteration order.
type ModeTracker struct {
	entries []ModeEntry
	index   map[string]int
	seq     int64
}

// NewModeTracker restores a tracker from persisted entries. Pass nil to
// start empty.
func NewModeTracker(entries []ModeEntry) *ModeTracker {
	t := &ModeTracker{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		t.entries = append(t.entries, e)
		t.index[e.Value] = len(t.entries) - 1
		if e.LastSeen > t.seq {
			t.seq = e.LastSeen
		}
	}
	return t
}

// Observe records one occurrence of value.
func (t *ModeTracker) Observe(value string) {
	t.seq++
	if i, ok := t.index[value]; ok {
		t.entries[i].Count++
		t.entries[i].LastSeen = t.seq
		return
	}
	t.entries = append(t.entries, ModeEntry{
		Value:     value,
		Count:     1,
		FirstSeen: t.seq,
		LastSeen:  t.seq,
	})
	t.index[value] = len(t.entries) - 1
}

// Entries returns the persisted form of the tracker, in first-seen order.
func (t *ModeTracker) Entries() []ModeEntry {
	out := make([]ModeEntry, len(t.entries))
	copy(out, t.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen < out[j].FirstSeen })
	return out
}

// Mode returns the most frequent value. The boolean is false when nothing
// has been observed.
func (t *ModeTracker) Mode(tb TieBreak) (string, bool) {
	if len(t.entries) == 0 {
		return "", false
	}

	best := t.entries[0]
	for _, e := range t.entries[1:] {
		if e.Count > best.Count {
			best = e
			continue
		}
		if e.Count < best.Count {
			continue
		}
		switch tb {
		case TieEarliestSeen:
			if e.FirstSeen < best.FirstSeen {
				best = e
			}
		case TieMostRecent:
			if e.LastSeen > best.LastSeen {
				best = e
			}
		case TieLexicographic:
			if e.Value < best.Value {
				best = e
			}
		}
	}
	return best.Value, true
}

// ModeOf computes the mode of a counts map, breaking ties toward the
// lexicographically smallest value. Used for one-shot rollup computations
// where no observation order is kept.
func ModeOf(counts map[string]int64) (string, bool) {
	if len(counts) == 0 {
		return "", false
	}

	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)

	best := values[0]
	for _, v := range values[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best, true
}
