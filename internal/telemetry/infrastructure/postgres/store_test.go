package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "scalesync/internal/telemetry/domain"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock, NewStore(db)
}

func recordRow(entityID string, ts time.Time, weight any, extra any) []driver.Value {
	row := []driver.Value{entityID, ts, weight}
	for range telemetry.Fields()[1:] {
		row = append(row, nil)
	}
	return append(row, extra)
}

func TestStore_InsertMany(t *testing.T) {
	_, mock, store := setupMockStore(t)
	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO telemetry_hourly"))
	prep.ExpectExec().
		WithArgs("S1", at, 12.5, nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("S1", at.Add(time.Hour), nil, nil, 20.0, nil, nil, nil, nil, nil, []byte(`{"battery":3.7}`)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	inserted, err := store.InsertMany(context.Background(), telemetry.ResolutionHourly, []telemetry.Record{
		{EntityID: "S1", Time: at, Values: map[telemetry.Field]float64{telemetry.FieldWeight: 12.5}},
		{
			EntityID: "S1",
			Time:     at.Add(time.Hour),
			Values:   map[telemetry.Field]float64{telemetry.FieldTemperature: 20},
			Extra:    map[string]float64{"battery": 3.7},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertManyRollsBackOnError(t *testing.T) {
	_, mock, store := setupMockStore(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO telemetry_daily"))
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.InsertMany(context.Background(), telemetry.ResolutionDaily, []telemetry.Record{
		{EntityID: "S1", Time: at, Values: map[telemetry.Field]float64{telemetry.FieldRain: 1}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, telemetry.ErrStore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertManyEmptyIsNoop(t *testing.T) {
	_, mock, store := setupMockStore(t)

	inserted, err := store.InsertMany(context.Background(), telemetry.ResolutionHourly, nil)

	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteAll(t *testing.T) {
	_, mock, store := setupMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM telemetry_daily WHERE entity_id = $1")).
		WithArgs("S9").
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := store.DeleteAll(context.Background(), telemetry.ResolutionDaily, "S9")

	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindRange(t *testing.T) {
	_, mock, store := setupMockStore(t)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows := sqlmock.NewRows(insertColumns).
		AddRow(recordRow("S1", start.Add(time.Hour), 10.5, nil)...).
		AddRow(recordRow("S2", start.Add(2*time.Hour), 11.0, []byte(`{"rssi":-70}`))...)
	mock.ExpectQuery(`SELECT entity_id, ts, .* FROM telemetry_hourly WHERE entity_id = ANY\(\$1\)\s+AND ts >= \$2\s+AND ts < \$3 ORDER BY ts ASC, entity_id ASC LIMIT \$4`).
		WithArgs(pq.StringArray{"S1", "S2"}, start, end, 100).
		WillReturnRows(rows)

	records, err := store.FindRange(context.Background(), telemetry.RangeQuery{
		Resolution: telemetry.ResolutionHourly,
		EntityIDs:  []string{"S1", "S2"},
		Start:      &start,
		End:        &end,
		Limit:      100,
	})

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "S1", records[0].EntityID)
	assert.Equal(t, map[telemetry.Field]float64{telemetry.FieldWeight: 10.5}, records[0].Values)
	assert.Equal(t, telemetry.ResolutionHourly, records[0].Resolution)
	assert.Equal(t, map[string]float64{"rssi": -70}, records[1].Extra)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindRangeRejectsInvertedWindowBeforeQuerying(t *testing.T) {
	_, mock, store := setupMockStore(t)
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := store.FindRange(context.Background(), telemetry.RangeQuery{
		Resolution: telemetry.ResolutionDaily,
		Start:      &start,
		End:        &end,
	})

	assert.ErrorIs(t, err, telemetry.ErrInvalidWindow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindExistingTimes(t *testing.T) {
	_, mock, store := setupMockStore(t)
	t1 := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)

	mock.ExpectQuery(`SELECT ts FROM telemetry_hourly WHERE entity_id = \$1`).
		WithArgs("S1", t1, t3).
		WillReturnRows(sqlmock.NewRows([]string{"ts"}).
			AddRow(t1).
			AddRow(t1.Add(30 * time.Minute)))

	existing, err := store.FindExistingTimes(context.Background(), telemetry.ResolutionHourly, "S1", []time.Time{t3, t1, t2})

	require.NoError(t, err)
	assert.True(t, existing.Has(t1))
	assert.False(t, existing.Has(t2))
	assert.False(t, existing.Has(t1.Add(30*time.Minute)))
	assert.Len(t, existing, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestTime(t *testing.T) {
	_, mock, store := setupMockStore(t)
	at := time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT MAX\(ts\)`).WithArgs("S1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(at))
	mock.ExpectQuery(`SELECT MAX\(ts\)`).WithArgs("S2").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	latest, ok, err := store.LatestTime(context.Background(), telemetry.ResolutionHourly, "S1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, latest)

	_, ok, err = store.LatestTime(context.Background(), telemetry.ResolutionHourly, "S2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestPerEntity(t *testing.T) {
	_, mock, store := setupMockStore(t)
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT DISTINCT ON \(entity_id\) .* FROM telemetry_daily WHERE entity_id = ANY\(\$1\) ORDER BY entity_id ASC, ts DESC`).
		WithArgs(pq.StringArray{"B", "A"}).
		WillReturnRows(sqlmock.NewRows(insertColumns).
			AddRow(recordRow("A", t1, 1.0, nil)...).
			AddRow(recordRow("B", t1.Add(time.Hour), 2.0, nil)...))

	records, err := store.LatestPerEntity(context.Background(), telemetry.ResolutionDaily, []string{"B", "A"})

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].EntityID)
	assert.Equal(t, "B", records[1].EntityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestNReturnsOldestFirst(t *testing.T) {
	_, mock, store := setupMockStore(t)
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY ts DESC\s+LIMIT \$2`).
		WithArgs("S1", 3).
		WillReturnRows(sqlmock.NewRows(insertColumns).
			AddRow(recordRow("S1", t1.Add(2*time.Hour), 3.0, nil)...).
			AddRow(recordRow("S1", t1.Add(time.Hour), 2.0, nil)...).
			AddRow(recordRow("S1", t1, 1.0, nil)...))

	records, err := store.LatestN(context.Background(), telemetry.ResolutionHourly, "S1", 3)

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, t1, records[0].Time)
	assert.Equal(t, t1.Add(2*time.Hour), records[2].Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryErrorIsStoreError(t *testing.T) {
	_, mock, store := setupMockStore(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("db down"))

	_, err := store.FindRange(context.Background(), telemetry.RangeQuery{Resolution: telemetry.ResolutionHourly})

	assert.ErrorIs(t, err, telemetry.ErrStore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UnknownResolution(t *testing.T) {
	_, _, store := setupMockStore(t)

	_, err := store.Count(context.Background(), telemetry.Resolution("weekly"))

	assert.ErrorIs(t, err, telemetry.ErrUnknownResolution)
}
