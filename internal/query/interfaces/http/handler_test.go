package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalesync/internal/query/application"
	telemetry "scalesync/internal/telemetry/domain"
	"scalesync/internal/telemetry/infrastructure/memory"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.NewStore()
	_, err := store.InsertMany(context.Background(), telemetry.ResolutionHourly, []telemetry.Record{
		{EntityID: "S1", Time: t0, Values: map[telemetry.Field]float64{telemetry.FieldWeight: 12.345}},
		{EntityID: "S1", Time: t0.Add(time.Hour), Values: map[telemetry.Field]float64{telemetry.FieldWeight: 12.5}},
		{EntityID: "S2", Time: t0.Add(time.Hour), Values: map[telemetry.Field]float64{telemetry.FieldHumidity: 61}},
	})
	require.NoError(t, err)
	svc, err := application.NewService(store, application.WithMaxLimit(100))
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(svc, nil).Register(r)
	return r
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeRows(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	return rows
}

func TestHandler_RangeJSON(t *testing.T) {
	rec := get(t, newRouter(t), "/api/v1/telemetry?resolution=hourly&entity=S1&start=2025-01-01T00:00:00Z&end=2025-01-01T01:00:00Z")

	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeRows(t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "S1", rows[0]["entity_id"])
	assert.Equal(t, "2025-01-01T00:00:00Z", rows[0]["time"])
	assert.Equal(t, 12.345, rows[0]["weight"])
}

func TestHandler_Latest(t *testing.T) {
	rec := get(t, newRouter(t), "/api/v1/telemetry?latest=true")

	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeRows(t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, "S1", rows[0]["entity_id"])
	assert.Equal(t, 12.5, rows[0]["weight"])
	assert.Equal(t, "S2", rows[1]["entity_id"])
}

func TestHandler_CSVAttachment(t *testing.T) {
	rec := get(t, newRouter(t), "/api/v1/telemetry?entity=S1&fields=weight&limit=1&format=csv")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="telemetry_S1_hourly.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "entity_id,time,weight\nS1,2025-01-01T00:00:00Z,12.35\n", rec.Body.String())
}

func TestHandler_BinaryExports(t *testing.T) {
	router := newRouter(t)
	for _, format := range []string{"xlsx", "pdf"} {
		rec := get(t, router, "/api/v1/telemetry?start=2025-01-01&end=2025-01-02&format="+format)
		require.Equal(t, http.StatusOK, rec.Code, format)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "telemetry_all_hourly_20250101_20250102."+format)
		assert.NotZero(t, rec.Body.Len())
	}
}

func TestHandler_Recent(t *testing.T) {
	rec := get(t, newRouter(t), "/api/v1/scales/S1/recent?n=1")

	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeRows(t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-01-01T01:00:00Z", rows[0]["time"])
}

func TestHandler_BadRequests(t *testing.T) {
	router := newRouter(t)
	for _, target := range []string{
		"/api/v1/telemetry?resolution=weekly",
		"/api/v1/telemetry?format=docx",
		"/api/v1/telemetry?start=yesterday",
		"/api/v1/telemetry?start=2025-01-02&end=2025-01-01",
		"/api/v1/telemetry?limit=ten",
		"/api/v1/telemetry?limit=101",
		"/api/v1/telemetry?fields=voltage",
		"/api/v1/scales/S1/recent?n=0",
		"/api/v1/scales/S1/recent?n=x",
	} {
		rec := get(t, router, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"), target)
	}
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("1735689600")
	require.NoError(t, err)
	assert.Equal(t, t0, *got)

	got, err = parseTime("2025-01-01T01:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, t0, *got)

	got, err = parseTime("")
	require.NoError(t, err)
	assert.Nil(t, got)
}
