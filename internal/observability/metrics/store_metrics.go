package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	telemetry "scalesync/internal/telemetry/domain"
)

const countTimeout = 5 * time.Second

func registerStoreMetrics(store telemetry.Store, logger *zap.Logger) {
	for _, res := range telemetry.Resolutions() {
		res := res
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "telemetry_records",
				Help:        "Stored telemetry records by resolution",
				ConstLabels: prometheus.Labels{"resolution": string(res)},
			},
			func() float64 {
				return countRecords(store, logger, res)
			},
		))
	}
}

func countRecords(store telemetry.Store, logger *zap.Logger, res telemetry.Resolution) float64 {
	if store == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()

	count, err := store.Count(ctx, res)
	if err != nil {
		if logger != nil {
			logger.Warn("metrics count failed", zap.String("resolution", string(res)), zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
