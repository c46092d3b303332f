package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mdmemory "scalesync/internal/masterdata/infrastructure/memory"
	syncapp "scalesync/internal/sync/application"
	telemetry "scalesync/internal/telemetry/domain"
	"scalesync/internal/telemetry/infrastructure/memory"
	"scalesync/internal/upstream"
	"scalesync/internal/upstream/fake"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestSync_AgainstFakeUpstream(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	origin := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	fakeAPI := fake.NewServer(fake.WithScales("A", "B"), fake.WithToken("tok"), fake.WithOrigin(origin))
	srv := httptest.NewServer(fakeAPI.Handler())
	defer srv.Close()

	client, err := upstream.NewClient(srv.URL, "tok", upstream.WithTimeout(5*time.Second))
	require.NoError(t, err)
	store := memory.NewStore()
	catalog := mdmemory.NewScaleRepository()
	svc, err := syncapp.NewService(store, catalog, client,
		syncapp.WithCatalogSource(client),
		syncapp.WithClock(fixedClock(now)),
	)
	require.NoError(t, err)
	ctx := context.Background()

	report, err := svc.RefreshCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncapp.ModeCatalog, report.Mode)
	scales, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, scales, 2)
	assert.Equal(t, "SN-A", scales[0].SerialNumber)

	// 72h lookback is clipped by the fake origin: Feb 27 00:00 to Mar 1 10:00.
	report, err = svc.SyncHourly(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Failed)
	const hours = 24 + 24 + 11
	assert.Equal(t, 2*hours, report.Inserted)

	latest, ok, err := store.LatestTime(ctx, telemetry.ResolutionHourly, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), latest)

	// Midnight samples carry a zero temperature and a string humidity.
	midnight, err := store.FindRange(ctx, telemetry.RangeQuery{
		Resolution: telemetry.ResolutionHourly,
		EntityIDs:  []string{"A"},
		Start:      &origin,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, midnight, 1)
	_, hasTemp := midnight[0].Value(telemetry.FieldTemperature)
	_, hasHumidity := midnight[0].Value(telemetry.FieldHumidity)
	assert.False(t, hasTemp)
	assert.False(t, hasHumidity)

	// A second run is caught up and fetches nothing.
	report, err = svc.SyncHourly(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	for _, o := range report.Entities {
		assert.True(t, o.Skipped, o.EntityID)
	}

	// Full resync replaces the partition with the same content.
	report, err = svc.ResyncEntity(ctx, "A")
	require.NoError(t, err)
	require.Zero(t, report.Failed)
	count, err := store.Count(ctx, telemetry.ResolutionHourly)
	require.NoError(t, err)
	assert.EqualValues(t, 2*hours, count)

	// A already has today's daily record from the resync; only B is fetched.
	report, err = svc.SyncDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	report, err = svc.SyncDaily(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
}
