package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	masterdata "scalesync/internal/masterdata/domain"
)

// ScaleRepository is an in-memory scale catalog.
type ScaleRepository struct {
	mu     sync.RWMutex
	scales map[string]masterdata.Scale
	now    func() time.Time
}

var _ masterdata.ScaleRepository = (*ScaleRepository)(nil)

// NewScaleRepository constructs a repository seeded with scales.
func NewScaleRepository(seed ...masterdata.Scale) *ScaleRepository {
	repo := &ScaleRepository{
		scales: make(map[string]masterdata.Scale, len(seed)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, s := range seed {
		repo.scales[s.ID] = s
	}
	return repo
}

// ReplaceAll swaps the catalog.
func (r *ScaleRepository) ReplaceAll(_ context.Context, scales []masterdata.Scale) error {
	for _, s := range scales {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	now := r.now()
	next := make(map[string]masterdata.Scale, len(scales))
	for _, s := range scales {
		s.CreatedAt, s.UpdatedAt = now, now
		next[s.ID] = s
	}

	r.mu.Lock()
	r.scales = next
	r.mu.Unlock()
	return nil
}

// List returns the catalog ordered by id.
func (r *ScaleRepository) List(_ context.Context) ([]masterdata.Scale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]masterdata.Scale, 0, len(r.scales))
	for _, s := range r.scales {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Get loads a scale by id.
func (r *ScaleRepository) Get(_ context.Context, id string) (*masterdata.Scale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scales[id]
	if !ok {
		return nil, masterdata.ErrScaleNotFound
	}
	return &s, nil
}

// Rename sets the display name of a scale.
func (r *ScaleRepository) Rename(_ context.Context, id, name string) (*masterdata.Scale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.scales[id]
	if !ok {
		return nil, masterdata.ErrScaleNotFound
	}
	s.Name = name
	s.UpdatedAt = r.now()
	r.scales[id] = s
	return &s, nil
}
