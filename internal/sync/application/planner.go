package application

import (
	"context"
	"errors"
	"time"

	telemetry "scalesync/internal/telemetry/domain"
)

const (
	defaultLookback = 72 * time.Hour
	dayStep         = 24 * time.Hour
)

// DefaultHistoryStart is the first instant pulled by a full resync.
var DefaultHistoryStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Plan is the planner's decision for one entity.
type Plan struct {
	Window Window
	Skip   bool
	Reason string
}

// LatestReader reports the newest stored time of an entity.
type LatestReader interface {
	LatestTime(ctx context.Context, res telemetry.Resolution, entityID string) (time.Time, bool, error)
}

// Planner computes fetch windows.
type Planner struct {
	latest       LatestReader
	clock        Clock
	historyStart time.Time
	lookback     time.Duration
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithHistoryStart sets the start of the full backfill window.
func WithHistoryStart(start time.Time) PlannerOption {
	return func(p *Planner) {
		if !start.IsZero() {
			p.historyStart = start.UTC()
		}
	}
}

// WithLookback sets the incremental window used when nothing is stored yet.
func WithLookback(lookback time.Duration) PlannerOption {
	return func(p *Planner) {
		if lookback > 0 {
			p.lookback = lookback
		}
	}
}

// WithPlannerClock overrides the clock.
func WithPlannerClock(clock Clock) PlannerOption {
	return func(p *Planner) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPlanner constructs a planner backed by latest.
func NewPlanner(latest LatestReader, opts ...PlannerOption) (*Planner, error) {
	if latest == nil {
		return nil, errors.New("sync planner: nil latest reader")
	}
	p := &Planner{
		latest:       latest,
		clock:        SystemClock,
		historyStart: DefaultHistoryStart,
		lookback:     defaultLookback,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Planner) now() time.Time { return p.clock.Now().UTC() }

// PlanFull returns [historyStart, now).
func (p *Planner) PlanFull() Plan {
	return bounded(p.historyStart, p.now(), "history start is not before now")
}

// PlanIncremental resumes one step after the newest stored record, or falls back to the lookback.
func (p *Planner) PlanIncremental(ctx context.Context, res telemetry.Resolution, entityID string) (Plan, error) {
	now := p.now()
	latest, ok, err := p.latest.LatestTime(ctx, res, entityID)
	if err != nil {
		return Plan{}, err
	}
	start := now.Add(-p.lookback)
	if ok {
		start = latest.UTC().Add(res.Step())
	}
	return bounded(start, now, "up to date"), nil
}

// PlanDaily returns the current UTC day.
func (p *Planner) PlanDaily() Plan {
	start := StartOfDay(p.now())
	return Plan{Window: Window{Start: start, End: start.Add(dayStep)}}
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func bounded(start, end time.Time, reason string) Plan {
	plan := Plan{Window: Window{Start: start, End: end}}
	if !start.Before(end) {
		plan.Skip = true
		plan.Reason = reason
	}
	return plan
}
