package application

import (
	"context"
	"time"

	masterdata "scalesync/internal/masterdata/domain"
	telemetry "scalesync/internal/telemetry/domain"
)

// Fetcher pulls raw telemetry for one entity window.
type Fetcher interface {
	Export(ctx context.Context, entityID string, res telemetry.Resolution, start, end time.Time) ([]telemetry.RawItem, error)
}

// CatalogSource lists the authoritative scale catalog.
type CatalogSource interface {
	ListScales(ctx context.Context) ([]masterdata.Scale, error)
}

// Locker guards a job against concurrent runs across replicas.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ReportPublisher announces finished runs.
type ReportPublisher interface {
	Publish(ctx context.Context, report RunReport) error
}
