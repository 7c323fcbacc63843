package packet

import (
	"strings"
	"unicode"

	"github.com/pdxlocations/meshdb/internal/constants"
	"github.com/pdxlocations/meshdb/internal/logging"
)

// Classify inspects an envelope and produces a typed record.
//
// Classification is best-effort: malformed payloads degrade to whatever
// subset of fields is present. The second return value is false when the
// packet matches no known category (or a recognized category yields nothing
// usable); such packets are dropped by the caller with a non-fatal
// diagnostic.
func Classify(env *Envelope) (Record, bool) {
	rec := Record{
		Kind:     KindUnknown,
		From:     env.From,
		RxTime:   env.rxTimeOrNow(),
		SNR:      env.SNR,
		HopsAway: env.HopsAway,
	}

	decoded := env.Decoded
	if decoded == nil {
		return rec, false
	}

	port, _ := getAny(decoded, "portnum")

	switch {
	case portMatches(port, constants.PortNameNodeInfo, constants.PortNodeInfo):
		if ni := extractNodeInfo(decoded); !ni.Empty() {
			rec.Kind = KindNodeInfo
			rec.NodeInfo = ni
			return rec, true
		}

	case portMatches(port, constants.PortNamePosition, constants.PortPosition),
		hasKey(decoded, "position"):
		if pos, ok := extractPosition(decoded, rec.RxTime); ok {
			rec.Kind = KindPosition
			rec.Position = pos
			return rec, true
		}

	case portMatches(port, constants.PortNameTelemetry, constants.PortTelemetry),
		hasKey(decoded, "telemetry"):
		if tel, ok := extractTelemetry(decoded, rec.RxTime); ok {
			rec.Kind = KindTelemetry
			rec.Telemetry = tel
			return rec, true
		}

	case portMatches(port, constants.PortNameTextMessage, constants.PortTextMessage),
		hasKey(decoded, "text"):
		if msg, ok := extractMessage(env, decoded, rec.RxTime); ok {
			rec.Kind = KindMessage
			rec.Message = msg
			return rec, true
		}
	}

	logging.Component("classifier").Debug("packet not classified",
		"from", env.From, "portnum", port)
	return rec, false
}

// portMatches reports whether decoded.portnum matches a known port by
// symbolic name or raw number. Older decoders emit the number, sometimes
// as a string.
func portMatches(port any, name string, num int) bool {
	switch p := port.(type) {
	case string:
		if p == name {
			return true
		}
		// Raw number serialized as string.
		return len(p) > 0 && p == itoa(num)
	default:
		if f, ok := asFloat(port); ok {
			return int(f) == num
		}
	}
	return false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func hasKey(m map[string]any, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

// =============================================================================
// NodeInfo extraction
// =============================================================================

func extractNodeInfo(decoded map[string]any) *NodeInfo {
	ni := &NodeInfo{}

	user, ok := getMap(decoded, "user")
	if !ok {
		return ni
	}

	if s, ok := getString(user, "longName", "long_name"); ok {
		ni.LongName = &s
	}
	if s, ok := getString(user, "shortName", "short_name"); ok {
		ni.ShortName = &s
	}
	// hwModel may be a symbolic string or a raw enum number.
	if v, ok := getAny(user, "hwModel", "hw_model"); ok {
		if s, ok := v.(string); ok {
			ni.HWModel = &s
		} else if f, ok := asFloat(v); ok {
			s := itoa(int(f))
			ni.HWModel = &s
		}
	}
	if s, ok := getString(user, "role"); ok {
		ni.Role = &s
	}
	if s, ok := getString(user, "publicKey", "public_key"); ok {
		ni.PublicKey = &s
	}
	if b, ok := getBool(user, "isLicensed", "is_licensed"); ok {
		ni.IsLicensed = &b
	}

	return ni
}

// =============================================================================
// Telemetry extraction
// =============================================================================

// telemetryGroups lists the metric group keys inside decoded.telemetry,
// camelCase and snake_case spellings.
var telemetryGroups = [][]string{
	{"deviceMetrics", "device_metrics"},
	{"powerMetrics", "power_metrics"},
	{"environmentMetrics", "environment_metrics"},
	{"airQualityMetrics", "air_quality_metrics"},
	{"localStats", "local_stats"},
	{"healthMetrics", "health_metrics"},
	{"hostMetrics", "host_metrics"},
}

func extractTelemetry(decoded map[string]any, rxTime int64) (*Telemetry, bool) {
	telem, ok := getMap(decoded, "telemetry")
	if !ok {
		return nil, false
	}

	ts := rxTime
	if t, ok := getInt(telem, "time"); ok && t > 0 {
		ts = t
	}

	tel := &Telemetry{Timestamp: ts}
	log := logging.Component("classifier")

	for _, names := range telemetryGroups {
		group, ok := getMap(telem, names...)
		if !ok {
			continue
		}
		for key, v := range group {
			val, ok := asFloat(v)
			if !ok {
				continue
			}
			name := snakeCase(key)
			if looksReserved(name) && !constants.IsReservedMetric(name) {
				log.Debug("metric name near reserved table", "metric", name)
			}
			tel.Metrics = append(tel.Metrics, Metric{Name: name, Value: val})
		}
	}

	if len(tel.Metrics) == 0 {
		return nil, false
	}
	return tel, true
}

// looksReserved reports whether a name is a near-miss for a reserved key,
// catching typos like "batery_level" at classification time.
func looksReserved(name string) bool {
	for reserved := range constants.ReservedMetrics {
		if name != reserved && strings.HasPrefix(name, reserved[:min(3, len(reserved))]) &&
			len(name) == len(reserved) {
			return true
		}
	}
	return false
}

// snakeCase converts a camelCase field name to snake_case. Runs of
// uppercase letters are kept together ("spO2" becomes "sp_o2").
func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(runes[i-1]) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// =============================================================================
// Message extraction
// =============================================================================

func extractMessage(env *Envelope, decoded map[string]any, rxTime int64) (*Message, bool) {
	text, ok := getString(decoded, "text")
	if !ok || text == "" {
		// Some decoders only expose the raw payload.
		if v, present := getAny(decoded, "payload"); present {
			switch p := v.(type) {
			case []byte:
				text = string(p)
			case string:
				text = p
			}
		}
	}
	if text == "" {
		return nil, false
	}

	channel := 0
	if c, ok := getInt(decoded, "channel"); ok {
		channel = int(c)
	} else if env.Channel != nil {
		channel = *env.Channel
	}

	return &Message{
		Channel:   channel,
		Timestamp: rxTime,
		Text:      strings.ReplaceAll(text, "\x00", ""),
	}, true
}

// =============================================================================
// Position extraction
// =============================================================================

func extractPosition(decoded map[string]any, rxTime int64) (*Position, bool) {
	pos, ok := getMap(decoded, "position")
	if !ok {
		return nil, false
	}

	p := &Position{Timestamp: rxTime}

	if lat, ok := getFloat(pos, "latitude", "lat"); ok {
		p.Latitude = &lat
	} else if lati, ok := getFloat(pos, "latitudeI", "latitude_i"); ok {
		lat := lati * 1e-7
		p.Latitude = &lat
	}
	if lon, ok := getFloat(pos, "longitude", "lon"); ok {
		p.Longitude = &lon
	} else if loni, ok := getFloat(pos, "longitudeI", "longitude_i"); ok {
		lon := loni * 1e-7
		p.Longitude = &lon
	}
	if alt, ok := getFloat(pos, "altitude", "alt"); ok {
		p.Altitude = &alt
	}
	if src, ok := getString(pos, "locationSource", "location_source"); ok {
		p.LocationSource = &src
	}
	if sats, ok := getInt(pos, "satsInView", "sats_in_view"); ok {
		n := int(sats)
		p.SatsInView = &n
	}
	if bits, ok := getInt(pos, "precisionBits", "precision_bits"); ok {
		n := int(bits)
		p.PrecisionBits = &n
	}

	if p.Latitude == nil && p.Longitude == nil && p.Altitude == nil {
		return nil, false
	}
	return p, true
}
