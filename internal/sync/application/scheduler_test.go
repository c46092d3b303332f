package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJobs struct {
	mu    sync.Mutex
	calls map[string]int
}

func (j *countingJobs) hit(name string) (RunReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls[name]++
	if name == "catalog" {
		return RunReport{}, errors.New("no source")
	}
	return RunReport{Mode: Mode(name)}, nil
}

func (j *countingJobs) SyncHourly(context.Context) (RunReport, error)     { return j.hit("hourly") }
func (j *countingJobs) SyncDaily(context.Context) (RunReport, error)      { return j.hit("daily") }
func (j *countingJobs) RefreshCatalog(context.Context) (RunReport, error) { return j.hit("catalog") }

func TestScheduler_RegistersNonEmptySchedules(t *testing.T) {
	jobs := &countingJobs{calls: map[string]int{}}

	s, err := NewScheduler(jobs, Schedule{Hourly: "5 * * * *", Daily: "", Catalog: "@daily"}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())
}

func TestScheduler_RejectsBadExpression(t *testing.T) {
	_, err := NewScheduler(&countingJobs{calls: map[string]int{}}, Schedule{Daily: "every day"}, nil)

	assert.Error(t, err)
}

func TestScheduler_EntriesRunJobs(t *testing.T) {
	jobs := &countingJobs{calls: map[string]int{}}
	s, err := NewScheduler(jobs, Schedule{Hourly: "@hourly", Daily: "@daily", Catalog: "@weekly"}, nil)
	require.NoError(t, err)

	for _, entry := range s.cron.Entries() {
		entry.WrappedJob.Run()
	}

	assert.Equal(t, map[string]int{"hourly": 1, "daily": 1, "catalog": 1}, jobs.calls)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(&countingJobs{calls: map[string]int{}}, Schedule{Hourly: "@hourly"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	<-s.Stop().Done()
}
