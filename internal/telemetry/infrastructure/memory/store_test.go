package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "scalesync/internal/telemetry/domain"
)

func sample(entityID string, at time.Time, weight float64) telemetry.Record {
	return telemetry.Record{
		EntityID: entityID,
		Time:     at,
		Values:   map[telemetry.Field]float64{telemetry.FieldWeight: weight},
	}
}

func TestStore_PartitionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMany(ctx, telemetry.ResolutionHourly, []telemetry.Record{sample("S1", at, 1)})
	require.NoError(t, err)

	hourly, err := store.Count(ctx, telemetry.ResolutionHourly)
	require.NoError(t, err)
	daily, err := store.Count(ctx, telemetry.ResolutionDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hourly)
	assert.Zero(t, daily)
}

func TestStore_FindRangeHalfOpenAndOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMany(ctx, telemetry.ResolutionHourly, []telemetry.Record{
		sample("S2", t0.Add(time.Hour), 2),
		sample("S1", t0.Add(time.Hour), 1),
		sample("S1", t0, 0.5),
		sample("S1", t0.Add(2*time.Hour), 3),
	})
	require.NoError(t, err)

	end := t0.Add(2 * time.Hour)
	records, err := store.FindRange(ctx, telemetry.RangeQuery{
		Resolution: telemetry.ResolutionHourly,
		Start:      &t0,
		End:        &end,
	})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, t0, records[0].Time)
	assert.Equal(t, "S1", records[1].EntityID)
	assert.Equal(t, "S2", records[2].EntityID)

	limited, err := store.FindRange(ctx, telemetry.RangeQuery{
		Resolution: telemetry.ResolutionHourly,
		EntityIDs:  []string{"S2"},
		Limit:      5,
	})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "S2", limited[0].EntityID)
}

func TestStore_DeleteAllOnlyTouchesEntity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMany(ctx, telemetry.ResolutionDaily, []telemetry.Record{
		sample("S1", at, 1),
		sample("S1", at.Add(24*time.Hour), 2),
		sample("S2", at, 3),
	})
	require.NoError(t, err)

	deleted, err := store.DeleteAll(ctx, telemetry.ResolutionDaily, "S1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := store.Count(ctx, telemetry.ResolutionDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_LatestQueries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMany(ctx, telemetry.ResolutionHourly, []telemetry.Record{
		sample("B", t0, 1),
		sample("A", t0.Add(2*time.Hour), 2),
		sample("A", t0, 3),
		sample("A", t0.Add(time.Hour), 4),
	})
	require.NoError(t, err)

	latest, ok, err := store.LatestTime(ctx, telemetry.ResolutionHourly, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Hour), latest)

	_, ok, err = store.LatestTime(ctx, telemetry.ResolutionHourly, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	perEntity, err := store.LatestPerEntity(ctx, telemetry.ResolutionHourly, nil)
	require.NoError(t, err)
	require.Len(t, perEntity, 2)
	assert.Equal(t, "A", perEntity[0].EntityID)
	assert.Equal(t, 2.0, perEntity[0].Values[telemetry.FieldWeight])
	assert.Equal(t, "B", perEntity[1].EntityID)

	recent, err := store.LatestN(ctx, telemetry.ResolutionHourly, "A", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, t0.Add(time.Hour), recent[0].Time)
	assert.Equal(t, t0.Add(2*time.Hour), recent[1].Time)

	_, err = store.LatestN(ctx, telemetry.ResolutionHourly, "A", 0)
	assert.ErrorIs(t, err, telemetry.ErrValidation)
}

func TestStore_FindExistingTimes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMany(ctx, telemetry.ResolutionHourly, []telemetry.Record{sample("S1", t0, 1)})
	require.NoError(t, err)

	existing, err := store.FindExistingTimes(ctx, telemetry.ResolutionHourly, "S1", []time.Time{
		t0.In(time.FixedZone("CET", 3600)),
		t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, existing.Has(t0))
	assert.False(t, existing.Has(t0.Add(time.Hour)))
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMany(ctx, telemetry.ResolutionHourly, []telemetry.Record{sample("S1", t0, 1)})
	require.NoError(t, err)

	records, err := store.FindRange(ctx, telemetry.RangeQuery{Resolution: telemetry.ResolutionHourly})
	require.NoError(t, err)
	records[0].Values[telemetry.FieldWeight] = 99

	again, err := store.FindRange(ctx, telemetry.RangeQuery{Resolution: telemetry.ResolutionHourly})
	require.NoError(t, err)
	assert.Equal(t, 1.0, again[0].Values[telemetry.FieldWeight])
}
