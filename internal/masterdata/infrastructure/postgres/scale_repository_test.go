package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	masterdata "scalesync/internal/masterdata/domain"
)

var scaleRowColumns = []string{
	"id", "serial_number", "hardware_key", "name", "latitude", "longitude", "last_transmission", "created_at", "updated_at",
}

func setupMockRepo(t *testing.T) (sqlmock.Sqlmock, *ScaleRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock, NewScaleRepository(db)
}

func TestScaleRepository_ReplaceAll(t *testing.T) {
	mock, repo := setupMockRepo(t)
	lat, lon := 52.5, 13.4

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scales")).WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO scales"))
	prep.ExpectExec().
		WithArgs("S1", "SN-1", "HW-1", "Garden", lat, lon, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("S2", "SN-2", "HW-2", "", nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReplaceAll(context.Background(), []masterdata.Scale{
		{ID: "S1", SerialNumber: "SN-1", HardwareKey: "HW-1", Name: "Garden", Latitude: &lat, Longitude: &lon},
		{ID: "S2", SerialNumber: "SN-2", HardwareKey: "HW-2"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScaleRepository_ReplaceAllRollsBack(t *testing.T) {
	mock, repo := setupMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scales")).WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), []masterdata.Scale{{ID: "S1"}})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScaleRepository_ReplaceAllValidatesFirst(t *testing.T) {
	mock, repo := setupMockRepo(t)

	err := repo.ReplaceAll(context.Background(), []masterdata.Scale{{ID: ""}})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScaleRepository_List(t *testing.T) {
	mock, repo := setupMockRepo(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, serial_number, .* FROM scales ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows(scaleRowColumns).
			AddRow("S1", "SN-1", "HW-1", "Garden", 52.5, 13.4, seen, created, created).
			AddRow("S2", "SN-2", "HW-2", "", nil, nil, nil, created, created))

	scales, err := repo.List(context.Background())

	require.NoError(t, err)
	require.Len(t, scales, 2)
	require.NotNil(t, scales[0].Latitude)
	assert.Equal(t, 52.5, *scales[0].Latitude)
	require.NotNil(t, scales[0].LastTransmission)
	assert.Equal(t, seen, *scales[0].LastTransmission)
	assert.Nil(t, scales[1].Latitude)
	assert.Nil(t, scales[1].LastTransmission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScaleRepository_GetNotFound(t *testing.T) {
	mock, repo := setupMockRepo(t)

	mock.ExpectQuery(`FROM scales WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, masterdata.ErrScaleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScaleRepository_Rename(t *testing.T) {
	mock, repo := setupMockRepo(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE scales SET name = \$2, updated_at = NOW\(\) WHERE id = \$1 RETURNING`).
		WithArgs("S1", "Orchard").
		WillReturnRows(sqlmock.NewRows(scaleRowColumns).
			AddRow("S1", "SN-1", "HW-1", "Orchard", nil, nil, nil, created, created.Add(time.Hour)))
	mock.ExpectQuery(`UPDATE scales`).
		WithArgs("S9", "Nope").
		WillReturnRows(sqlmock.NewRows(scaleRowColumns))

	scale, err := repo.Rename(context.Background(), "S1", "Orchard")
	require.NoError(t, err)
	assert.Equal(t, "Orchard", scale.Name)

	_, err = repo.Rename(context.Background(), "S9", "Nope")
	assert.ErrorIs(t, err, masterdata.ErrScaleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
