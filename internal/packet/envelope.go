// Package packet defines the incoming packet envelope and the classifier
// that turns decoded mesh packets into typed, category-tagged records.
package packet

import "time"

// Envelope is a decoded packet as delivered by the radio layer.
//
// The Decoded payload is a loosely-typed mapping whose shape varies with the
// application port and the decoder version; it is consumed entirely by the
// classifier and never stored verbatim.
type Envelope struct {
	// From is the sender's numeric node id.
	From uint32

	// RxTime is the receive timestamp (unix seconds). Zero means unknown;
	// the classifier substitutes the current time.
	RxTime int64

	// SNR is the receive signal-to-noise ratio, if reported.
	SNR *float64

	// HopsAway is the reported hop count, if present.
	HopsAway *int

	// Channel is the radio channel index, if present at the top level.
	Channel *int

	// Decoded is the decoded payload. decoded["portnum"] drives
	// classification.
	Decoded map[string]any
}

// PortName renders the payload's port designator for diagnostics. It may
// be a name, a number, or empty when the payload carries none.
func (e *Envelope) PortName() string {
	if e.Decoded == nil {
		return ""
	}
	if s, ok := getString(e.Decoded, "portnum"); ok {
		return s
	}
	if n, ok := getInt(e.Decoded, "portnum"); ok {
		return itoa(int(n))
	}
	return ""
}

// rxTimeOrNow returns the envelope receive time, substituting the current
// time when the radio layer did not stamp one.
func (e *Envelope) rxTimeOrNow() int64 {
	if e.RxTime > 0 {
		return e.RxTime
	}
	return time.Now().Unix()
}

// =============================================================================
// Loose payload accessors
// =============================================================================
//
// Decoders disagree on field spelling (camelCase vs snake_case) and on
// numeric representation (JSON decoding yields float64, native decoders
// yield int/int64). These helpers accept all common shapes.

// getAny returns the first present, non-nil value among the named keys.
func getAny(m map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// getMap returns a nested mapping under any of the named keys.
func getMap(m map[string]any, names ...string) (map[string]any, bool) {
	v, ok := getAny(m, names...)
	if !ok {
		return nil, false
	}
	sub, ok := v.(map[string]any)
	return sub, ok
}

// getString returns a string value under any of the named keys.
func getString(m map[string]any, names ...string) (string, bool) {
	v, ok := getAny(m, names...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// getFloat returns a numeric value under any of the named keys.
func getFloat(m map[string]any, names ...string) (float64, bool) {
	v, ok := getAny(m, names...)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

// getInt returns an integer value under any of the named keys.
func getInt(m map[string]any, names ...string) (int64, bool) {
	f, ok := getFloat(m, names...)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// getBool returns a boolean value under any of the named keys.
// Integer 0/1 is accepted for decoders that flatten booleans.
func getBool(m map[string]any, names ...string) (bool, bool) {
	v, ok := getAny(m, names...)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	}
	return false, false
}

// asFloat converts any common numeric representation to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
