package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	telemetry "scalesync/internal/telemetry/domain"
	"scalesync/internal/telemetry/infrastructure/memory"
)

func TestObserveHelpers(t *testing.T) {
	store := memory.NewStore()
	_, err := store.InsertMany(context.Background(), telemetry.ResolutionDaily, []telemetry.Record{{
		EntityID: "S1",
		Time:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Values:   map[telemetry.Field]float64{telemetry.FieldWeight: 1},
	}})
	require.NoError(t, err)

	Init(store, zap.NewNop())

	ObserveSyncRun("incremental", ResultSuccess, time.Second)
	AddRecordsInserted(telemetry.ResolutionHourly, 3)
	AddRecordsInserted(telemetry.ResolutionHourly, 0)
	AddRecordsDeleted(telemetry.ResolutionHourly, 2)
	ObserveExport("csv", ResultError, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(syncRunsTotal.WithLabelValues("incremental", ResultSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(recordsInserted.WithLabelValues("hourly")))
	assert.Equal(t, 2.0, testutil.ToFloat64(recordsDeleted.WithLabelValues("hourly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exportTotal.WithLabelValues("csv", ResultError)))
	assert.Equal(t, 1.0, countRecords(store, zap.NewNop(), telemetry.ResolutionDaily))
	assert.Zero(t, countRecords(store, zap.NewNop(), telemetry.ResolutionHourly))
}
