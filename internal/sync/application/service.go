package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	masterdata "scalesync/internal/masterdata/domain"
	"scalesync/internal/observability/metrics"
	telemetry "scalesync/internal/telemetry/domain"
)

const (
	defaultParallelism   = 4
	defaultEntityTimeout = 60 * time.Second
	defaultLockTTL       = 30 * time.Minute
	lockKeyPrefix        = "scalesync:sync:"

	msgAlreadyRunning = "already running"
	msgSyncedToday    = "already synced today"
)

// ErrNoCatalogSource is returned by RefreshCatalog when no upstream catalog is wired.
var ErrNoCatalogSource = errors.New("sync service: no catalog source configured")

// Service drives planner, fetcher, normalizer and store for every scale.
type Service struct {
	store   telemetry.Store
	catalog masterdata.ScaleRepository
	fetcher Fetcher

	planner       *Planner
	normalizer    telemetry.Normalizer
	clock         Clock
	logger        *zap.Logger
	locker        Locker
	lockTTL       time.Duration
	publisher     ReportPublisher
	source        CatalogSource
	parallelism   int
	entityTimeout time.Duration
	fullLocks     *keyedMutex
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocker guards each job with a distributed lock held for at most ttl.
func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithPublisher announces finished runs.
func WithPublisher(publisher ReportPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithParallelism bounds how many entities sync at once.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithEntityTimeout bounds each upstream fetch.
func WithEntityTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.entityTimeout = timeout
		}
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n telemetry.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithCatalogSource enables RefreshCatalog.
func WithCatalogSource(source CatalogSource) Option {
	return func(s *Service) { s.source = source }
}

// WithClock overrides the clock used for reports and planning.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPlanner replaces the default planner.
func WithPlanner(p *Planner) Option {
	return func(s *Service) { s.planner = p }
}

// NewService constructs the sync orchestrator.
func NewService(store telemetry.Store, catalog masterdata.ScaleRepository, fetcher Fetcher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("sync service: nil store")
	}
	if catalog == nil {
		return nil, errors.New("sync service: nil catalog")
	}
	if fetcher == nil {
		return nil, errors.New("sync service: nil fetcher")
	}
	s := &Service{
		store:         store,
		catalog:       catalog,
		fetcher:       fetcher,
		normalizer:    telemetry.NewNormalizer(),
		clock:         SystemClock,
		logger:        zap.NewNop(),
		lockTTL:       defaultLockTTL,
		parallelism:   defaultParallelism,
		entityTimeout: defaultEntityTimeout,
		fullLocks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.planner == nil {
		planner, err := NewPlanner(store, WithPlannerClock(s.clock))
		if err != nil {
			return nil, err
		}
		s.planner = planner
	}
	return s, nil
}

// ResyncEntity replaces both resolutions of one entity with a full backfill.
// Entity locks are taken per resolution inside syncFull.
func (s *Service) ResyncEntity(ctx context.Context, entityID string) (RunReport, error) {
	if entityID == "" {
		return RunReport{}, fmt.Errorf("sync service: %w: empty entity id", telemetry.ErrValidation)
	}
	return s.run(ctx, ModeFull, "", telemetry.Resolutions(), func(context.Context) ([]string, error) {
		return []string{entityID}, nil
	}, s.syncFull)
}

// ResyncAll runs a full backfill for every cataloged entity.
func (s *Service) ResyncAll(ctx context.Context) (RunReport, error) {
	return s.run(ctx, ModeFull, lockKeyPrefix+string(ModeFull), telemetry.Resolutions(), s.entityIDs, s.syncFull)
}

// SyncHourly appends new hourly records for every entity.
func (s *Service) SyncHourly(ctx context.Context) (RunReport, error) {
	res := []telemetry.Resolution{telemetry.ResolutionHourly}
	return s.run(ctx, ModeIncremental, lockKeyPrefix+string(ModeIncremental), res, s.entityIDs, s.syncIncremental)
}

// SyncDaily appends today's daily record for every entity that has none yet.
func (s *Service) SyncDaily(ctx context.Context) (RunReport, error) {
	res := []telemetry.Resolution{telemetry.ResolutionDaily}
	return s.run(ctx, ModeDaily, lockKeyPrefix+string(ModeDaily), res, s.entityIDs, s.syncDaily)
}

// RefreshCatalog replaces the scale catalog with the upstream list.
// A local display name survives when the upstream name is empty.
func (s *Service) RefreshCatalog(ctx context.Context) (RunReport, error) {
	if s.source == nil {
		return RunReport{}, ErrNoCatalogSource
	}
	report := newReport(ModeCatalog, s.clock.Now().UTC())

	release, acquired := s.lock(ctx, lockKeyPrefix+string(ModeCatalog))
	if !acquired {
		return s.skipped(ctx, report), nil
	}
	defer release()

	scales, err := s.source.ListScales(ctx)
	if err != nil {
		metrics.IncCatalogRefresh(metrics.ResultError)
		return RunReport{}, fmt.Errorf("sync service: list scales: %w", err)
	}
	current, err := s.catalog.List(ctx)
	if err != nil {
		metrics.IncCatalogRefresh(metrics.ResultError)
		return RunReport{}, fmt.Errorf("sync service: %w: %w", telemetry.ErrStore, err)
	}
	names := make(map[string]string, len(current))
	for _, sc := range current {
		names[sc.ID] = sc.Name
	}
	for i := range scales {
		if scales[i].Name == "" {
			scales[i].Name = names[scales[i].ID]
		}
	}
	if err := s.catalog.ReplaceAll(ctx, scales); err != nil {
		metrics.IncCatalogRefresh(metrics.ResultError)
		return RunReport{}, fmt.Errorf("sync service: %w: %w", telemetry.ErrStore, err)
	}

	report.Message = fmt.Sprintf("catalog refreshed with %d scales", len(scales))
	report.finish(s.clock.Now().UTC())
	metrics.IncCatalogRefresh(metrics.ResultSuccess)
	s.logger.Info("catalog refreshed", zap.String("run_id", report.RunID.String()), zap.Int("scales", len(scales)))
	s.publish(ctx, *report)
	return *report, nil
}

type entitySyncFunc func(ctx context.Context, entityID string, res telemetry.Resolution) EntityOutcome

func (s *Service) run(
	ctx context.Context,
	mode Mode,
	lockKey string,
	resolutions []telemetry.Resolution,
	entities func(context.Context) ([]string, error),
	syncOne entitySyncFunc,
) (RunReport, error) {
	report := newReport(mode, s.clock.Now().UTC(), resolutions...)

	if lockKey != "" {
		release, acquired := s.lock(ctx, lockKey)
		if !acquired {
			return s.skipped(ctx, report), nil
		}
		defer release()
	}

	ids, err := entities(ctx)
	if err != nil {
		metrics.ObserveSyncRun(string(mode), metrics.ResultError, 0)
		return RunReport{}, err
	}

	outcomes := make([][]EntityOutcome, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for i, entityID := range ids {
		i, entityID := i, entityID
		g.Go(func() error {
			perEntity := make([]EntityOutcome, 0, len(resolutions))
			for _, res := range resolutions {
				perEntity = append(perEntity, s.observe(mode, syncOne(ctx, entityID, res)))
			}
			outcomes[i] = perEntity
			return nil
		})
	}
	_ = g.Wait()

	for _, perEntity := range outcomes {
		report.Entities = append(report.Entities, perEntity...)
	}
	report.finish(s.clock.Now().UTC())

	result := metrics.ResultSuccess
	if report.Failed > 0 {
		result = metrics.ResultError
	}
	metrics.ObserveSyncRun(string(mode), result, report.Duration())
	s.logger.Info("sync run finished",
		zap.String("run_id", report.RunID.String()),
		zap.String("mode", string(mode)),
		zap.Int("entities", len(ids)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("inserted", report.Inserted),
		zap.Duration("duration", report.Duration()),
	)
	s.publish(ctx, *report)
	return *report, nil
}

func (s *Service) entityIDs(ctx context.Context) ([]string, error) {
	scales, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync service: list catalog: %w: %w", telemetry.ErrStore, err)
	}
	return masterdata.IDs(scales), nil
}

// fullLockKey names the per-entity lock shared by ResyncEntity and ResyncAll.
func fullLockKey(entityID string, res telemetry.Resolution) string {
	return lockKeyPrefix + string(ModeFull) + ":" + entityID + ":" + string(res)
}

// syncFull deletes the partition of the entity and inserts the fresh backfill.
// A failed fetch leaves stored data untouched. Full syncs of one partition are
// serialized in process and, with a locker, across replicas.
func (s *Service) syncFull(ctx context.Context, entityID string, res telemetry.Resolution) EntityOutcome {
	outcome := EntityOutcome{EntityID: entityID, Resolution: res}
	plan := s.planner.PlanFull()
	outcome.Window = &plan.Window
	if plan.Skip {
		outcome.Skipped, outcome.Message = true, plan.Reason
		return outcome
	}

	key := fullLockKey(entityID, res)
	unlock := s.fullLocks.Lock(key)
	defer unlock()
	release, acquired := s.lock(ctx, key)
	if !acquired {
		outcome.Skipped, outcome.Message = true, msgAlreadyRunning
		return outcome
	}
	defer release()

	records, err := s.fetchRecords(ctx, entityID, res, plan.Window, &outcome)
	if err != nil {
		return failed(outcome, err)
	}
	records = telemetry.Unseen(records, nil)
	outcome.Kept = len(records)

	deleted, err := s.store.DeleteAll(ctx, res, entityID)
	if err != nil {
		return failed(outcome, err)
	}
	outcome.Deleted = deleted
	metrics.AddRecordsDeleted(res, deleted)

	inserted, err := s.insertUnseen(ctx, entityID, res, records)
	if err != nil {
		return failed(outcome, err)
	}
	outcome.Inserted = inserted
	metrics.AddRecordsInserted(res, inserted)
	outcome.Message = fmt.Sprintf("replaced %d records with %d", deleted, inserted)
	return outcome
}

func (s *Service) syncIncremental(ctx context.Context, entityID string, res telemetry.Resolution) EntityOutcome {
	outcome := EntityOutcome{EntityID: entityID, Resolution: res}
	plan, err := s.planner.PlanIncremental(ctx, res, entityID)
	if err != nil {
		return failed(outcome, err)
	}
	outcome.Window = &plan.Window
	if plan.Skip {
		outcome.Skipped, outcome.Message = true, plan.Reason
		return outcome
	}
	return s.appendWindow(ctx, outcome, plan.Window)
}

func (s *Service) syncDaily(ctx context.Context, entityID string, res telemetry.Resolution) EntityOutcome {
	outcome := EntityOutcome{EntityID: entityID, Resolution: res}
	plan := s.planner.PlanDaily()
	outcome.Window = &plan.Window

	existing, err := s.store.FindRange(ctx, telemetry.RangeQuery{
		Resolution: res,
		EntityIDs:  []string{entityID},
		Start:      &plan.Window.Start,
		End:        &plan.Window.End,
		Limit:      1,
	})
	if err != nil {
		return failed(outcome, err)
	}
	if len(existing) > 0 {
		outcome.Skipped, outcome.Message = true, msgSyncedToday
		return outcome
	}
	return s.appendWindow(ctx, outcome, plan.Window)
}

// appendWindow fetches a window and inserts only times not stored yet.
func (s *Service) appendWindow(ctx context.Context, outcome EntityOutcome, window Window) EntityOutcome {
	records, err := s.fetchRecords(ctx, outcome.EntityID, outcome.Resolution, window, &outcome)
	if err != nil {
		return failed(outcome, err)
	}
	outcome.Kept = len(records)

	inserted, err := s.insertUnseen(ctx, outcome.EntityID, outcome.Resolution, records)
	if err != nil {
		return failed(outcome, err)
	}
	outcome.Inserted = inserted
	metrics.AddRecordsInserted(outcome.Resolution, inserted)
	outcome.Message = fmt.Sprintf("inserted %d of %d records", inserted, len(records))
	return outcome
}

// insertUnseen re-reads existing times right before inserting.
func (s *Service) insertUnseen(ctx context.Context, entityID string, res telemetry.Resolution, records []telemetry.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	existing, err := s.store.FindExistingTimes(ctx, res, entityID, telemetry.Times(records))
	if err != nil {
		return 0, err
	}
	fresh := telemetry.Unseen(records, existing)
	if len(fresh) == 0 {
		return 0, nil
	}
	return s.store.InsertMany(ctx, res, fresh)
}

func (s *Service) fetchRecords(ctx context.Context, entityID string, res telemetry.Resolution, window Window, outcome *EntityOutcome) ([]telemetry.Record, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.entityTimeout)
	defer cancel()

	started := time.Now()
	items, err := s.fetcher.Export(fetchCtx, entityID, res, window.Start, window.End)
	if err != nil {
		metrics.ObserveFetch(res, metrics.ResultError, time.Since(started))
		if !errors.Is(err, telemetry.ErrUpstreamFetch) {
			err = fmt.Errorf("%w: %w", telemetry.ErrUpstreamFetch, err)
		}
		return nil, err
	}
	metrics.ObserveFetch(res, metrics.ResultSuccess, time.Since(started))
	outcome.Fetched = len(items)
	return s.normalizer.NormalizeAll(items, entityID, res), nil
}

func (s *Service) observe(mode Mode, outcome EntityOutcome) EntityOutcome {
	fields := []zap.Field{
		zap.String("mode", string(mode)),
		zap.String("entity_id", outcome.EntityID),
		zap.String("resolution", string(outcome.Resolution)),
		zap.Int("fetched", outcome.Fetched),
		zap.Int("kept", outcome.Kept),
		zap.Int("inserted", outcome.Inserted),
	}
	switch {
	case outcome.Failed():
		metrics.IncEntitySync(outcome.Resolution, metrics.ResultError)
		s.logger.Warn("entity sync failed", append(fields, zap.String("error", outcome.Error))...)
	case outcome.Skipped:
		metrics.IncEntitySync(outcome.Resolution, metrics.ResultSkipped)
		s.logger.Debug("entity sync skipped", append(fields, zap.String("reason", outcome.Message))...)
	default:
		metrics.IncEntitySync(outcome.Resolution, metrics.ResultSuccess)
		s.logger.Debug("entity synced", append(fields, zap.Int64("deleted", outcome.Deleted))...)
	}
	return outcome
}

// lock returns a release func and whether the job may run. Lock backend errors do not block the job.
func (s *Service) lock(ctx context.Context, key string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	token, ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("sync lock unavailable, running unguarded", zap.String("key", key), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("sync lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, true
}

func (s *Service) skipped(ctx context.Context, report *RunReport) RunReport {
	report.Skipped = true
	report.Message = msgAlreadyRunning
	report.finish(s.clock.Now().UTC())
	metrics.ObserveSyncRun(string(report.Mode), metrics.ResultSkipped, report.Duration())
	s.logger.Info("sync run skipped", zap.String("mode", string(report.Mode)), zap.String("reason", msgAlreadyRunning))
	s.publish(ctx, *report)
	return *report
}

func (s *Service) publish(ctx context.Context, report RunReport) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, report); err != nil {
		s.logger.Warn("run report publish failed", zap.String("run_id", report.RunID.String()), zap.Error(err))
	}
}

func failed(outcome EntityOutcome, err error) EntityOutcome {
	outcome.Error = err.Error()
	return outcome
}
