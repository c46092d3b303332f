package export

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scalesync/internal/query/application"
	telemetry "scalesync/internal/telemetry/domain"
)

// TimeLayout is the time format of every export.
const TimeLayout = "2006-01-02T15:04:05Z"

// internalKeys never reach an export.
var internalKeys = map[string]struct{}{"id": {}, "_id": {}}

// Columns returns entity_id, time, then every other key of rows alphabetically.
func Columns(rows []application.Row) []string {
	seen := make(map[string]struct{})
	var rest []string
	for _, row := range rows {
		for key := range row {
			if key == telemetry.KeyEntityID || key == telemetry.KeyTime {
				continue
			}
			if _, ok := internalKeys[key]; ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append([]string{telemetry.KeyEntityID, telemetry.KeyTime}, rest...)
}

// FormatValue renders one cell. Numbers keep at most two decimals, rounded half away from zero.
func FormatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case time.Time:
		return value.UTC().Format(TimeLayout)
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return ""
		}
		return decimal.NewFromFloat(value).Round(2).String()
	case float32:
		return decimal.NewFromFloat32(value).Round(2).String()
	case int:
		return decimal.NewFromInt(int64(value)).String()
	case int64:
		return decimal.NewFromInt(value).String()
	case decimal.Decimal:
		return value.Round(2).String()
	default:
		return fmt.Sprint(value)
	}
}

const fileDate = "20060102"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename names an export file, for example telemetry_S1-S2_hourly_20250101_20250201.csv.
func Filename(entityIDs []string, res telemetry.Resolution, start, end *time.Time, ext string) string {
	entities := "all"
	if len(entityIDs) > 0 {
		parts := make([]string, 0, len(entityIDs))
		for _, id := range entityIDs {
			if clean := unsafeName.ReplaceAllString(id, "_"); clean != "" {
				parts = append(parts, clean)
			}
		}
		if len(parts) > 0 {
			entities = strings.Join(parts, "-")
		}
	}
	name := "telemetry_" + entities + "_" + string(res)
	switch {
	case start != nil && end != nil:
		name += "_" + start.UTC().Format(fileDate) + "_" + end.UTC().Format(fileDate)
	case start != nil:
		name += "_from_" + start.UTC().Format(fileDate)
	case end != nil:
		name += "_to_" + end.UTC().Format(fileDate)
	}
	return name + "." + strings.TrimPrefix(ext, ".")
}
