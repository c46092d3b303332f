package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"scalesync/internal/observability/metrics"
	telemetry "scalesync/internal/telemetry/domain"
)

// DefaultMaxLimit caps an explicit range query limit.
const DefaultMaxLimit = 10000

// Row is one output record: entity_id, time and each present field.
type Row map[string]any

// RangeRequest selects a time window of one resolution.
type RangeRequest struct {
	Resolution telemetry.Resolution
	EntityIDs  []string
	Start      *time.Time
	End        *time.Time
	// Limit of 0 returns every matching row.
	Limit int
	// Fields projects the output; empty keeps every field.
	Fields []string
}

// Service answers read queries over the telemetry store.
type Service struct {
	store    telemetry.Store
	maxLimit int
	logger   *zap.Logger
}

// Option configures the service.
type Option func(*Service)

// WithMaxLimit overrides DefaultMaxLimit.
func WithMaxLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxLimit = limit
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a query service.
func NewService(store telemetry.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("query service: nil store")
	}
	s := &Service{store: store, maxLimit: DefaultMaxLimit, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxLimit is the largest accepted explicit limit.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Range returns records inside the window, oldest first.
func (s *Service) Range(ctx context.Context, req RangeRequest) ([]Row, error) {
	start := time.Now()
	query, err := s.rangeQuery(req)
	if err != nil {
		metrics.ObserveQuery("range", metrics.ResultError, time.Since(start))
		return nil, err
	}
	records, err := s.store.FindRange(ctx, query)
	if err != nil {
		metrics.ObserveQuery("range", metrics.ResultError, time.Since(start))
		s.logger.Warn("query failed", zap.String("kind", "range"), zap.Error(err))
		return nil, err
	}
	metrics.ObserveQuery("range", metrics.ResultSuccess, time.Since(start))
	return toRows(records, req.Fields), nil
}

// Latest returns the newest record per entity, ordered by entity id.
func (s *Service) Latest(ctx context.Context, res telemetry.Resolution, entityIDs []string) ([]Row, error) {
	start := time.Now()
	if !res.Valid() {
		metrics.ObserveQuery("latest", metrics.ResultError, time.Since(start))
		return nil, invalid("resolution", "%q is not hourly or daily", res)
	}
	records, err := s.store.LatestPerEntity(ctx, res, compact(entityIDs))
	if err != nil {
		metrics.ObserveQuery("latest", metrics.ResultError, time.Since(start))
		s.logger.Warn("query failed", zap.String("kind", "latest"), zap.Error(err))
		return nil, err
	}
	metrics.ObserveQuery("latest", metrics.ResultSuccess, time.Since(start))
	return toRows(records, nil), nil
}

// Recent returns the n newest records of one entity, oldest first.
func (s *Service) Recent(ctx context.Context, res telemetry.Resolution, entityID string, n int) ([]Row, error) {
	start := time.Now()
	if err := s.validateRecent(res, entityID, n); err != nil {
		metrics.ObserveQuery("recent", metrics.ResultError, time.Since(start))
		return nil, err
	}
	records, err := s.store.LatestN(ctx, res, entityID, n)
	if err != nil {
		metrics.ObserveQuery("recent", metrics.ResultError, time.Since(start))
		s.logger.Warn("query failed", zap.String("kind", "recent"), zap.Error(err))
		return nil, err
	}
	metrics.ObserveQuery("recent", metrics.ResultSuccess, time.Since(start))
	return toRows(records, nil), nil
}

func (s *Service) rangeQuery(req RangeRequest) (telemetry.RangeQuery, error) {
	if !req.Resolution.Valid() {
		return telemetry.RangeQuery{}, invalid("resolution", "%q is not hourly or daily", req.Resolution)
	}
	if req.Start != nil && req.End != nil && !req.Start.Before(*req.End) {
		return telemetry.RangeQuery{}, invalid("window", "start must be before end")
	}
	switch {
	case req.Limit < 0:
		return telemetry.RangeQuery{}, invalid("limit", "must be positive")
	case req.Limit > s.maxLimit:
		return telemetry.RangeQuery{}, invalid("limit", "must not exceed %d", s.maxLimit)
	}
	for _, name := range req.Fields {
		if name != telemetry.KeyEntityID && name != telemetry.KeyTime && !telemetry.IsField(name) {
			return telemetry.RangeQuery{}, invalid("fields", "unknown field %q", name)
		}
	}
	query := telemetry.RangeQuery{
		Resolution: req.Resolution,
		EntityIDs:  compact(req.EntityIDs),
		Limit:      req.Limit,
	}
	if req.Start != nil {
		t := req.Start.UTC()
		query.Start = &t
	}
	if req.End != nil {
		t := req.End.UTC()
		query.End = &t
	}
	return query, nil
}

func (s *Service) validateRecent(res telemetry.Resolution, entityID string, n int) error {
	switch {
	case !res.Valid():
		return invalid("resolution", "%q is not hourly or daily", res)
	case entityID == "":
		return invalid("entity", "is required")
	case n <= 0:
		return invalid("n", "must be positive")
	case n > s.maxLimit:
		return invalid("n", "must not exceed %d", s.maxLimit)
	}
	return nil
}

func toRows(records []telemetry.Record, fields []string) []Row {
	keep := projection(fields)
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := Row(rec.Fields())
		if keep != nil {
			for key := range row {
				if _, ok := keep[key]; !ok {
					delete(row, key)
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// projection always keeps entity_id and time.
func projection(fields []string) map[string]struct{} {
	if len(fields) == 0 {
		return nil
	}
	keep := map[string]struct{}{
		telemetry.KeyEntityID: {},
		telemetry.KeyTime:     {},
	}
	for _, f := range fields {
		keep[f] = struct{}{}
	}
	return keep
}

func compact(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
