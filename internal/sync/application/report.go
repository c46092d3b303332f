package application

import (
	"time"

	"github.com/google/uuid"

	telemetry "scalesync/internal/telemetry/domain"
)

// Mode names a kind of sync run.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeDaily       Mode = "daily"
	ModeCatalog     Mode = "catalog"
)

// EntityOutcome is the result of syncing one entity at one resolution.
type EntityOutcome struct {
	EntityID   string               `json:"entity_id"`
	Resolution telemetry.Resolution `json:"resolution,omitempty"`
	Window     *Window              `json:"window,omitempty"`
	Fetched    int                  `json:"fetched"`
	Kept       int                  `json:"kept"`
	Inserted   int                  `json:"inserted"`
	Deleted    int64                `json:"deleted,omitempty"`
	Skipped    bool                 `json:"skipped,omitempty"`
	Message    string               `json:"message,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Failed reports whether the entity errored.
func (o EntityOutcome) Failed() bool { return o.Error != "" }

// RunReport summarizes one sync invocation. It is never persisted.
type RunReport struct {
	RunID       uuid.UUID              `json:"run_id"`
	Mode        Mode                   `json:"mode"`
	Resolutions []telemetry.Resolution `json:"resolutions,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	Skipped     bool                   `json:"skipped,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Succeeded   int                    `json:"succeeded"`
	Failed      int                    `json:"failed"`
	Inserted    int                    `json:"inserted"`
	Entities    []EntityOutcome        `json:"entities"`
}

func newReport(mode Mode, startedAt time.Time, resolutions ...telemetry.Resolution) *RunReport {
	return &RunReport{
		RunID:       uuid.New(),
		Mode:        mode,
		Resolutions: resolutions,
		StartedAt:   startedAt,
		Entities:    []EntityOutcome{},
	}
}

// finish tallies outcomes.
func (r *RunReport) finish(at time.Time) {
	r.FinishedAt = at
	r.Succeeded, r.Failed, r.Inserted = 0, 0, 0
	for _, o := range r.Entities {
		if o.Failed() {
			r.Failed++
		} else {
			r.Succeeded++
		}
		r.Inserted += o.Inserted
	}
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
