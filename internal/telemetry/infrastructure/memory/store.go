package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	telemetry "scalesync/internal/telemetry/domain"
)

// Store is an in-memory telemetry store for local runs and tests.
type Store struct {
	mu   sync.RWMutex
	data map[telemetry.Resolution]map[string][]telemetry.Record
}

var _ telemetry.Store = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	data := make(map[telemetry.Resolution]map[string][]telemetry.Record)
	for _, res := range telemetry.Resolutions() {
		data[res] = make(map[string][]telemetry.Record)
	}
	return &Store{data: data}
}

func (s *Store) partition(res telemetry.Resolution) (map[string][]telemetry.Record, error) {
	part, ok := s.data[res]
	if !ok {
		return nil, fmt.Errorf("telemetry store: %w: %q", telemetry.ErrUnknownResolution, res)
	}
	return part, nil
}

// DeleteAll removes every record of entityID.
func (s *Store) DeleteAll(_ context.Context, res telemetry.Resolution, entityID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, err := s.partition(res)
	if err != nil {
		return 0, err
	}
	deleted := int64(len(part[entityID]))
	delete(part, entityID)
	return deleted, nil
}

// InsertMany appends copies of records.
func (s *Store) InsertMany(_ context.Context, res telemetry.Resolution, records []telemetry.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, err := s.partition(res)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if r.EntityID == "" || r.Time.IsZero() {
			return 0, fmt.Errorf("telemetry store: %w: invalid record", telemetry.ErrStore)
		}
	}
	for _, r := range records {
		stored := clone(r)
		stored.Resolution = res
		part[r.EntityID] = append(part[r.EntityID], stored)
	}
	return len(records), nil
}

// FindRange returns matching records ordered by time, then entity id.
func (s *Store) FindRange(_ context.Context, q telemetry.RangeQuery) ([]telemetry.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(q.Resolution)
	if err != nil {
		return nil, err
	}

	var result []telemetry.Record
	for _, entityID := range s.entities(part, q.EntityIDs) {
		for _, r := range part[entityID] {
			if q.Start != nil && r.Time.Before(*q.Start) {
				continue
			}
			if q.End != nil && !r.Time.Before(*q.End) {
				continue
			}
			result = append(result, clone(r))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Time.Equal(result[j].Time) {
			return result[i].Time.Before(result[j].Time)
		}
		return result[i].EntityID < result[j].EntityID
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// FindExistingTimes returns the candidates already stored for entityID.
func (s *Store) FindExistingTimes(_ context.Context, res telemetry.Resolution, entityID string, candidates []time.Time) (telemetry.TimeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(res)
	if err != nil {
		return nil, err
	}
	wanted := telemetry.NewTimeSet(candidates...)
	existing := make(telemetry.TimeSet)
	for _, r := range part[entityID] {
		if wanted.Has(r.Time) {
			existing.Add(r.Time)
		}
	}
	return existing, nil
}

// LatestTime returns the newest stored time for entityID.
func (s *Store) LatestTime(_ context.Context, res telemetry.Resolution, entityID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(res)
	if err != nil {
		return time.Time{}, false, err
	}
	latest, ok := newest(part[entityID])
	if !ok {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// LatestPerEntity returns the newest record of each entity, sorted by entity id.
func (s *Store) LatestPerEntity(_ context.Context, res telemetry.Resolution, entityIDs []string) ([]telemetry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(res)
	if err != nil {
		return nil, err
	}
	var result []telemetry.Record
	for _, entityID := range s.entities(part, entityIDs) {
		if latest, ok := newest(part[entityID]); ok {
			result = append(result, clone(latest))
		}
	}
	return result, nil
}

// LatestN returns the n newest records of entityID, oldest first.
func (s *Store) LatestN(_ context.Context, res telemetry.Resolution, entityID string, n int) ([]telemetry.Record, error) {
	if n <= 0 {
		return nil, fmt.Errorf("telemetry store: %w: n must be positive", telemetry.ErrValidation)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(res)
	if err != nil {
		return nil, err
	}
	records := make([]telemetry.Record, 0, len(part[entityID]))
	for _, r := range part[entityID] {
		records = append(records, clone(r))
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	if len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// Count returns the number of records in the partition.
func (s *Store) Count(_ context.Context, res telemetry.Resolution) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, err := s.partition(res)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, records := range part {
		count += int64(len(records))
	}
	return count, nil
}

// entities returns the requested ids, or every stored id, sorted.
func (s *Store) entities(part map[string][]telemetry.Record, filter []string) []string {
	var ids []string
	if len(filter) > 0 {
		seen := make(map[string]struct{}, len(filter))
		for _, id := range filter {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	} else {
		ids = make([]string, 0, len(part))
		for id := range part {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func newest(records []telemetry.Record) (telemetry.Record, bool) {
	if len(records) == 0 {
		return telemetry.Record{}, false
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.Time.After(latest.Time) {
			latest = r
		}
	}
	return latest, true
}

func clone(r telemetry.Record) telemetry.Record {
	out := r
	out.Time = r.Time.UTC()
	if r.Values != nil {
		out.Values = make(map[telemetry.Field]float64, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	if r.Extra != nil {
		out.Extra = make(map[string]float64, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
