package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is the aggregation granularity of a telemetry record.
type Resolution string

const (
	ResolutionHourly Resolution = "hourly"
	ResolutionDaily  Resolution = "daily"
)

// Resolutions lists every supported resolution in sync order.
func Resolutions() []Resolution {
	return []Resolution{ResolutionHourly, ResolutionDaily}
}

// ParseResolution validates a resolution string.
func ParseResolution(value string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(value))) {
	case ResolutionHourly:
		return ResolutionHourly, nil
	case ResolutionDaily:
		return ResolutionDaily, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, value)
	}
}

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	return r == ResolutionHourly || r == ResolutionDaily
}

// Step is the distance between two consecutive samples.
func (r Resolution) Step() time.Duration {
	if r == ResolutionDaily {
		return 24 * time.Hour
	}
	return time.Hour
}

func (r Resolution) String() string { return string(r) }
