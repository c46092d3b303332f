package telemetry

import "time"

// TimeSet holds sample times keyed at microsecond precision, the precision Postgres keeps.
type TimeSet map[int64]struct{}

// TimeKey returns the set key for t.
func TimeKey(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

// NewTimeSet builds a set from times.
func NewTimeSet(times ...time.Time) TimeSet {
	set := make(TimeSet, len(times))
	for _, t := range times {
		set.Add(t)
	}
	return set
}

// Add inserts t.
func (s TimeSet) Add(t time.Time) {
	s[TimeKey(t)] = struct{}{}
}

// Has reports whether t is present. A nil set is empty.
func (s TimeSet) Has(t time.Time) bool {
	_, ok := s[TimeKey(t)]
	return ok
}

// Times returns the sample times of records in order.
func Times(records []Record) []time.Time {
	out := make([]time.Time, 0, len(records))
	for _, r := range records {
		out = append(out, r.Time)
	}
	return out
}

// Unseen returns the records whose time is not in existing. Repeated times
// inside records collapse to the first occurrence.
func Unseen(records []Record, existing TimeSet) []Record {
	seen := make(TimeSet, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if existing.Has(r.Time) || seen.Has(r.Time) {
			continue
		}
		seen.Add(r.Time)
		out = append(out, r)
	}
	return out
}
