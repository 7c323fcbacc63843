package packet

// Kind is the semantic category of a classified record.
type Kind int

const (
	// KindUnknown marks packets that match no known category.
	KindUnknown Kind = iota
	// KindNodeInfo is a node identity/metadata update.
	KindNodeInfo
	// KindTelemetry is a set of scalar metric readings.
	KindTelemetry
	// KindMessage is a free-text message.
	KindMessage
	// KindPosition is a position update.
	KindPosition
)

// String returns a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNodeInfo:
		return "nodeinfo"
	case KindTelemetry:
		return "telemetry"
	case KindMessage:
		return "message"
	case KindPosition:
		return "position"
	default:
		return "unknown"
	}
}

// Record is the typed extraction produced from one packet. Exactly one of
// the category payloads is populated, selected by Kind.
type Record struct {
	// Kind tags the populated payload.
	Kind Kind

	// From is the sender node id the record is keyed by.
	From uint32

	// RxTime is the packet receive timestamp (unix seconds).
	RxTime int64

	// SNR carries the envelope SNR for the last-heard touch, if reported.
	SNR *float64

	// HopsAway carries the envelope hop count, if reported.
	HopsAway *int

	NodeInfo  *NodeInfo
	Telemetry *Telemetry
	Message   *Message
	Position  *Position
}

// NodeInfo holds node identity fields. Pointer fields encode presence:
// a nil field was absent from the packet and must not overwrite stored
// state downstream.
type NodeInfo struct {
	LongName   *string
	ShortName  *string
	HWModel    *string
	Role       *string
	PublicKey  *string
	IsLicensed *bool
}

// Empty reports whether no field was extracted.
func (n *NodeInfo) Empty() bool {
	return n.LongName == nil && n.ShortName == nil && n.HWModel == nil &&
		n.Role == nil && n.PublicKey == nil && n.IsLicensed == nil
}

// Metric is a single named scalar reading.
type Metric struct {
	Name  string
	Value float64
}

// Telemetry holds zero or more metric readings sharing one timestamp.
// The timestamp is the metric's embedded time when present (it is more
// precise than the receive time for store-and-forward packets), otherwise
// the packet receive time.
type Telemetry struct {
	Timestamp int64
	Metrics   []Metric
}

// Message holds a free-text message.
type Message struct {
	Channel   int
	Timestamp int64
	Text      string
}

// Position holds a position update. Pointer fields encode presence.
type Position struct {
	Timestamp      int64
	Latitude       *float64
	Longitude      *float64
	Altitude       *float64
	LocationSource *string
	SatsInView     *int
	PrecisionBits  *int
}
