package telemetry

import "time"

// RawItem is one upstream telemetry object as decoded from JSON.
type RawItem map[string]any

// Record is a cleaned telemetry sample for one scale and resolution.
type Record struct {
	EntityID   string
	Resolution Resolution
	Time       time.Time

	Values map[Field]float64
	// Extra holds numeric fields outside the vocabulary when the normalizer keeps them.
	Extra map[string]float64
}

// Value returns the value of a vocabulary field.
func (r Record) Value(field Field) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Raw renders the record back into upstream shape.
func (r Record) Raw() RawItem {
	raw := RawItem{KeyTime: r.Time.UTC().Format(time.RFC3339Nano)}
	for name, v := range r.Extra {
		raw[name] = v
	}
	for field, v := range r.Values {
		raw[string(field)] = v
	}
	return raw
}

// Fields flattens the record into output keys. The storage id is never part of it.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Values)+len(r.Extra)+2)
	out[KeyEntityID] = r.EntityID
	out[KeyTime] = r.Time.UTC()
	for name, v := range r.Extra {
		out[name] = v
	}
	for field, v := range r.Values {
		out[string(field)] = v
	}
	return out
}
