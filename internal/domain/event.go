package domain

import "math"

// Well-known event keys the ledger interprets. Every other key is opaque.
const (
	KeyID        = "id"
	KeyTimestamp = "ts"
)

// Event is a single schema-less ledger record. Values are limited to what the
// codec can round-trip: nil, bool, int64, uint64, float64, string, []byte,
// []any and map[string]any, nested arbitrarily.
type Event map[string]any

// ID returns the dedup key of the event. Events whose id is missing, empty or
// not a string report ok == false and are never deduplicated.
func (e Event) ID() (string, bool) {
	v, ok := e[KeyID].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Timestamp returns the event time in fractional Unix seconds, or 0 when the
// ts field is absent or not numeric.
func (e Event) Timestamp() float64 {
	f, ok := toFloat(e[KeyTimestamp])
	if !ok || math.IsNaN(f) {
		return 0
	}
	return f
}

// HasTimestamp reports whether the event carries a numeric ts field.
func (e Event) HasTimestamp() bool {
	_, ok := toFloat(e[KeyTimestamp])
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
