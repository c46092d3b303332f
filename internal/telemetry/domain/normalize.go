package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalizer turns raw upstream items into records.
type Normalizer struct {
	keepExtra bool
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithExtraFields keeps numeric fields outside the vocabulary in Record.Extra.
func WithExtraFields(keep bool) NormalizerOption {
	return func(n *Normalizer) {
		n.keepExtra = keep
	}
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(opts ...NormalizerOption) Normalizer {
	var n Normalizer
	for _, opt := range opts {
		opt(&n)
	}
	return n
}

// Normalize cleans raw with the default normalizer.
func Normalize(raw RawItem, entityID string, res Resolution) (Record, bool) {
	return Normalizer{}.Normalize(raw, entityID, res)
}

// Normalize coerces every vocabulary field to a number and drops zero or
// non-numeric values. It returns false when no vocabulary field survives or
// the item carries no usable time.
func (n Normalizer) Normalize(raw RawItem, entityID string, res Resolution) (Record, bool) {
	if raw == nil {
		return Record{}, false
	}
	ts, ok := ParseTime(raw[KeyTime])
	if !ok {
		return Record{}, false
	}

	record := Record{
		EntityID:   entityID,
		Resolution: res,
		Time:       ts,
		Values:     make(map[Field]float64, len(fields)),
	}
	for _, field := range fields {
		value, ok := toNumber(raw[string(field)])
		if !ok || value == 0 {
			continue
		}
		record.Values[field] = value
	}
	if len(record.Values) == 0 {
		return Record{}, false
	}

	if n.keepExtra {
		for key, rawValue := range raw {
			if _, reserved := reservedKeys[key]; reserved || IsField(key) {
				continue
			}
			value, ok := toNumber(rawValue)
			if !ok || value == 0 {
				continue
			}
			if record.Extra == nil {
				record.Extra = make(map[string]float64)
			}
			record.Extra[key] = value
		}
	}
	return record, true
}

// NormalizeAll cleans items and returns the kept records.
func (n Normalizer) NormalizeAll(items []RawItem, entityID string, res Resolution) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if record, ok := n.Normalize(item, entityID, res); ok {
			out = append(out, record)
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime accepts ISO-8601 strings and Unix seconds. Zone-less strings are UTC.
func ParseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return unixSeconds(secs)
		}
		return time.Time{}, false
	default:
		secs, ok := toNumber(value)
		if !ok {
			return time.Time{}, false
		}
		return unixSeconds(secs)
	}
}

func unixSeconds(secs float64) (time.Time, bool) {
	if secs <= 0 {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), true
}

func toNumber(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		// flags are not readings
		return 0, false
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
