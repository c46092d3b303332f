package masterdata

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrScaleNotFound is returned when a scale id is not in the catalog.
var ErrScaleNotFound = errors.New("scale not found")

// Scale is one telemetry-emitting device in the catalog.
type Scale struct {
	ID               string     `json:"id"`
	SerialNumber     string     `json:"serial_number"`
	HardwareKey      string     `json:"hardware_key"`
	Name             string     `json:"name"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	LastTransmission *time.Time `json:"last_transmission,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate checks scale invariants.
func (s Scale) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("scale: empty id")
	}
	if s.Latitude != nil && (*s.Latitude < -90 || *s.Latitude > 90) {
		return errors.New("scale: latitude out of range")
	}
	if s.Longitude != nil && (*s.Longitude < -180 || *s.Longitude > 180) {
		return errors.New("scale: longitude out of range")
	}
	return nil
}

// IDs returns the ids of scales in order.
func IDs(scales []Scale) []string {
	ids := make([]string, 0, len(scales))
	for _, s := range scales {
		ids = append(ids, s.ID)
	}
	return ids
}

// ScaleRepository manages the scale catalog.
type ScaleRepository interface {
	// ReplaceAll swaps the whole catalog atomically.
	ReplaceAll(ctx context.Context, scales []Scale) error
	List(ctx context.Context) ([]Scale, error)
	Get(ctx context.Context, id string) (*Scale, error)
	Rename(ctx context.Context, id, name string) (*Scale, error)
}
