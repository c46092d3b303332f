package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	telemetry "scalesync/internal/telemetry/domain"
)

const (
	metricPrefix = "scalesync_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	syncRunsTotal   *prometheus.CounterVec
	syncRunLatency  *prometheus.HistogramVec
	entitySyncTotal *prometheus.CounterVec

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	recordsInserted *prometheus.CounterVec
	recordsDeleted  *prometheus.CounterVec

	catalogRefreshTotal *prometheus.CounterVec

	queryTotal    *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers metrics and, when store is set, partition size gauges.
func Init(store telemetry.Store, logger *zap.Logger) {
	registerOnce.Do(func() {
		syncRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_runs_total",
				Help: "Total sync runs by mode and result",
			},
			[]string{"mode", "result"},
		)
		syncRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sync_run_latency_seconds",
				Help:    "Sync run latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"mode"},
		)
		entitySyncTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "entity_sync_total",
				Help: "Total per-entity sync outcomes by resolution and result",
			},
			[]string{"resolution", "result"},
		)

		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upstream_fetch_total",
				Help: "Total upstream telemetry fetches by resolution and result",
			},
			[]string{"resolution", "result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upstream_fetch_latency_seconds",
				Help:    "Upstream telemetry fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resolution"},
		)

		recordsInserted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_inserted_total",
				Help: "Total telemetry records inserted by resolution",
			},
			[]string{"resolution"},
		)
		recordsDeleted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_deleted_total",
				Help: "Total telemetry records deleted by full resync",
			},
			[]string{"resolution"},
		)

		catalogRefreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "catalog_refresh_total",
				Help: "Total catalog refreshes by result",
			},
			[]string{"result"},
		)

		queryTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "query_total",
				Help: "Total telemetry queries by kind and result",
			},
			[]string{"kind", "result"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "query_latency_seconds",
				Help:    "Telemetry query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total telemetry exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Telemetry export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		prometheus.MustRegister(
			syncRunsTotal,
			syncRunLatency,
			entitySyncTotal,
			fetchTotal,
			fetchLatency,
			recordsInserted,
			recordsDeleted,
			catalogRefreshTotal,
			queryTotal,
			queryLatency,
			exportTotal,
			exportLatency,
		)

		if store != nil {
			registerStoreMetrics(store, logger)
		}
	})
}

// ObserveSyncRun records a finished sync run.
func ObserveSyncRun(mode, result string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if syncRunsTotal != nil {
		syncRunsTotal.WithLabelValues(mode, result).Inc()
	}
	if syncRunLatency != nil {
		syncRunLatency.WithLabelValues(mode).Observe(duration.Seconds())
	}
}

// IncEntitySync counts one entity outcome.
func IncEntitySync(res telemetry.Resolution, result string) {
	if result == "" {
		result = resultSuccess
	}
	if entitySyncTotal != nil {
		entitySyncTotal.WithLabelValues(string(res), result).Inc()
	}
}

// ObserveFetch records an upstream fetch.
func ObserveFetch(res telemetry.Resolution, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(string(res), result).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(string(res)).Observe(duration.Seconds())
	}
}

// AddRecordsInserted adds to the inserted counter.
func AddRecordsInserted(res telemetry.Resolution, count int) {
	if count <= 0 {
		return
	}
	if recordsInserted != nil {
		recordsInserted.WithLabelValues(string(res)).Add(float64(count))
	}
}

// AddRecordsDeleted adds to the deleted counter.
func AddRecordsDeleted(res telemetry.Resolution, count int64) {
	if count <= 0 {
		return
	}
	if recordsDeleted != nil {
		recordsDeleted.WithLabelValues(string(res)).Add(float64(count))
	}
}

// IncCatalogRefresh counts a catalog refresh.
func IncCatalogRefresh(result string) {
	if result == "" {
		result = resultSuccess
	}
	if catalogRefreshTotal != nil {
		catalogRefreshTotal.WithLabelValues(result).Inc()
	}
}

// ObserveQuery records a read query.
func ObserveQuery(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if queryTotal != nil {
		queryTotal.WithLabelValues(kind, result).Inc()
	}
	if queryLatency != nil {
		queryLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveExport records a file export.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
