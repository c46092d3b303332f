package telemetry

import (
	"context"
	"time"
)

// RangeQuery selects records of one resolution.
type RangeQuery struct {
	Resolution Resolution
	// EntityIDs filters by scale; empty selects every scale.
	EntityIDs []string
	Start     *time.Time
	End       *time.Time
	// Limit caps the number of rows; 0 means no limit.
	Limit int
}

// Validate checks the query before it reaches storage.
func (q RangeQuery) Validate() error {
	if !q.Resolution.Valid() {
		return ErrUnknownResolution
	}
	if q.Start != nil && q.End != nil && !q.Start.Before(*q.End) {
		return ErrInvalidWindow
	}
	if q.Limit < 0 {
		return ErrValidation
	}
	return nil
}

// Store persists cleaned records in the hourly and daily partitions.
type Store interface {
	DeleteAll(ctx context.Context, res Resolution, entityID string) (int64, error)
	InsertMany(ctx context.Context, res Resolution, records []Record) (int, error)
	FindRange(ctx context.Context, q RangeQuery) ([]Record, error)
	FindExistingTimes(ctx context.Context, res Resolution, entityID string, candidates []time.Time) (TimeSet, error)
	LatestTime(ctx context.Context, res Resolution, entityID string) (time.Time, bool, error)
	LatestPerEntity(ctx context.Context, res Resolution, entityIDs []string) ([]Record, error)
	LatestN(ctx context.Context, res Resolution, entityID string, n int) ([]Record, error)
	Count(ctx context.Context, res Resolution) (int64, error)
}
