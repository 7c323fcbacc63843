package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pdxlocations/meshdb/internal/constants"
	"github.com/pdxlocations/meshdb/internal/merrors"
)

// MetricPoint is one (value, timestamp) reading of a metric.
type MetricPoint struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// PositionSnapshot is the latest known position of a node.
type PositionSnapshot struct {
	Timestamp      int64    `json:"timestamp"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Altitude       *float64 `json:"altitude,omitempty"`
	LocationSource *string  `json:"location_source,omitempty"`
}

// NodeSnapshot is the latest known state of one node: its metadata row
// plus the latest value of every metric recorded for it.
type NodeSnapshot struct {
	NodeID     uint32   `json:"node_id"`
	LongName   *string  `json:"long_name,omitempty"`
	ShortName  *string  `json:"short_name,omitempty"`
	HWModel    *string  `json:"hw_model,omitempty"`
	Role       *string  `json:"role,omitempty"`
	PublicKey  *string  `json:"public_key,omitempty"`
	IsLicensed *bool    `json:"is_licensed,omitempty"`
	LastHeard  int64    `json:"last_heard"`
	SNR        *float64 `json:"snr,omitempty"`
	HopsAway   *int     `json:"hops_away,omitempty"`

	Metrics  map[string]MetricPoint `json:"metrics,omitempty"`
	Position *PositionSnapshot      `json:"position,omitempty"`
}

// DisplayName returns the long name, falling back to the hex-derived
// default used for nodes that never sent a NODEINFO packet. Synthesis
// happens only on read so stored fields stay honest about presence.
func (n *NodeSnapshot) DisplayName() string {
	if n.LongName != nil && *n.LongName != "" {
		return *n.LongName
	}
	return fmt.Sprintf("Meshtastic %04x", n.NodeID&0xffff)
}

// ShortDisplayName returns the short name or the hex-suffix fallback.
func (n *NodeSnapshot) ShortDisplayName() string {
	if n.ShortName != nil && *n.ShortName != "" {
		return *n.ShortName
	}
	return fmt.Sprintf("%04x", n.NodeID&0xffff)
}

// GetNode returns the latest known state of a node, or ErrNodeNotFound if
// no packet from that node was ever stored here.
func (s *Store) GetNode(ctx context.Context, nodeID uint32) (*NodeSnapshot, error) {
	snap, err := s.nodeRow(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	metrics, err := s.latestMetrics(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	snap.Metrics = metrics

	pos, err := s.latestPosition(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	snap.Position = pos

	return snap, nil
}

func (s *Store) nodeRow(ctx context.Context, nodeID uint32) (*NodeSnapshot, error) {
	snap := &NodeSnapshot{NodeID: nodeID}
	var lastHeard sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT long_name, short_name, hw_model, role, public_key, is_licensed,
		       last_heard, snr, hops_away
		FROM nodes WHERE node_id = ?
	`, int64(nodeID)).Scan(
		&snap.LongName, &snap.ShortName, &snap.HWModel, &snap.Role,
		&snap.PublicKey, &snap.IsLicensed, &lastHeard, &snap.SNR, &snap.HopsAway,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node %d: %w", nodeID, merrors.ErrNodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read node %d: %v: %w", nodeID, err, merrors.ErrStoreUnavailable)
	}

	if lastHeard.Valid {
		snap.LastHeard = lastHeard.Int64
	}
	return snap, nil
}

// latestMetrics returns the latest value per metric for a node. "Latest"
// is the maximum timestamp; equal timestamps resolve to the
// most-recently-inserted row.
func (s *Store) latestMetrics(ctx context.Context, nodeID uint32) (map[string]MetricPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, value, ts
		FROM telemetry
		WHERE node_id = ?
		QUALIFY row_number() OVER (PARTITION BY metric ORDER BY ts DESC, seq DESC) = 1
	`, int64(nodeID))
	if err != nil {
		return nil, fmt.Errorf("latest metrics for %d: %v: %w", nodeID, err, merrors.ErrStoreUnavailable)
	}
	defer rows.Close()

	out := make(map[string]MetricPoint)
	for rows.Next() {
		var name string
		var p MetricPoint
		if err := rows.Scan(&name, &p.Value, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		out[name] = p
	}
	if len(out) == 0 {
		out = nil
	}
	return out, rows.Err()
}

// latestPosition returns the newest position row for a node, or nil.
func (s *Store) latestPosition(ctx context.Context, nodeID uint32) (*PositionSnapshot, error) {
	var p PositionSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT ts, latitude, longitude, altitude, location_source
		FROM positions
		WHERE node_id = ?
		ORDER BY ts DESC, seq DESC
		LIMIT 1
	`, int64(nodeID)).Scan(&p.Timestamp, &p.Latitude, &p.Longitude, &p.Altitude, &p.LocationSource)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest position for %d: %v: %w", nodeID, err, merrors.ErrStoreUnavailable)
	}
	return &p, nil
}

// GetMetricByID returns the latest value of one metric for a node.
// The reserved position names read from the positions table.
func (s *Store) GetMetricByID(ctx context.Context, nodeID uint32, metric string) (*MetricPoint, error) {
	if col, ok := positionColumn(metric); ok {
		return s.latestPositionMetric(ctx, nodeID, col)
	}

	var p MetricPoint
	err := s.db.QueryRowContext(ctx, `
		SELECT value, ts
		FROM telemetry
		WHERE node_id = ? AND metric = ?
		ORDER BY ts DESC, seq DESC
		LIMIT 1
	`, int64(nodeID), metric).Scan(&p.Value, &p.Timestamp)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node %d metric %q: %w", nodeID, metric, merrors.ErrMetricNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("metric %q for %d: %v: %w", metric, nodeID, err, merrors.ErrStoreUnavailable)
	}
	return &p, nil
}

func positionColumn(metric string) (string, bool) {
	switch metric {
	case constants.MetricLatitude:
		return "latitude", true
	case constants.MetricLongitude:
		return "longitude", true
	case constants.MetricAltitude:
		return "altitude", true
	}
	return "", false
}

func (s *Store) latestPositionMetric(ctx context.Context, nodeID uint32, col string) (*MetricPoint, error) {
	var p MetricPoint
	var v sql.NullFloat64
	// col is one of the fixed position column names, never caller input.
	err := s.db.QueryRowContext(ctx, `
		SELECT `+col+`, ts
		FROM positions
		WHERE node_id = ? AND `+col+` IS NOT NULL
		ORDER BY ts DESC, seq DESC
		LIMIT 1
	`, int64(nodeID)).Scan(&v, &p.Timestamp)
	if err == sql.ErrNoRows || (err == nil && !v.Valid) {
		return nil, fmt.Errorf("node %d metric %q: %w", nodeID, col, merrors.ErrMetricNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("position metric %q for %d: %v: %w", col, nodeID, err, merrors.ErrStoreUnavailable)
	}
	p.Value = v.Float64
	return &p, nil
}

// GetNodeField returns a node-info column as a string value, covering the
// metadata fields reachable through the metric lookup path.
func (s *Store) GetNodeField(ctx context.Context, nodeID uint32, field string) (string, error) {
	snap, err := s.nodeRow(ctx, nodeID)
	if err != nil {
		return "", err
	}

	strOrEmpty := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	switch field {
	case "long_name":
		return snap.DisplayName(), nil
	case "short_name":
		return snap.ShortDisplayName(), nil
	case "hw_model", "hardware_model":
		return strOrEmpty(snap.HWModel), nil
	case "role":
		return strOrEmpty(snap.Role), nil
	case "public_key":
		return strOrEmpty(snap.PublicKey), nil
	case "node_id", "id":
		return fmt.Sprintf("!%08x", nodeID), nil
	}
	return "", fmt.Errorf("node field %q: %w", field, merrors.ErrMetricNotFound)
}

// HistoryPoint is one row of metric history.
type HistoryPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// GetMetricHistory returns the history of one metric for a node within
// [from, to], ascending by timestamp then insertion order. An empty range
// yields an empty slice. limit <= 0 means no explicit cap.
func (s *Store) GetMetricHistory(ctx context.Context, nodeID uint32, metric string, from, to int64, limit int) ([]HistoryPoint, error) {
	query := `
		SELECT ts, value
		FROM telemetry
		WHERE node_id = ? AND metric = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, seq ASC
	`
	args := []any{int64(nodeID), metric, from, to}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history %q for %d: %v: %w", metric, nodeID, err, merrors.ErrStoreUnavailable)
	}
	defer rows.Close()

	out := []HistoryPoint{}
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StoredMessage is one message row read back from the store.
type StoredMessage struct {
	NodeID    uint32 `json:"node_id"`
	Channel   int    `json:"channel"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// GetMessages returns a node's messages ordered by receive timestamp then
// arrival order. limit <= 0 means no explicit cap.
func (s *Store) GetMessages(ctx context.Context, nodeID uint32, limit int) ([]StoredMessage, error) {
	query := `
		SELECT node_id, channel, ts, text
		FROM messages
		WHERE node_id = ?
		ORDER BY ts ASC, seq ASC
	`
	args := []any{int64(nodeID)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("messages for %d: %v: %w", nodeID, err, merrors.ErrStoreUnavailable)
	}
	defer rows.Close()

	out := []StoredMessage{}
	for rows.Next() {
		var m StoredMessage
		var id int64
		if err := rows.Scan(&id, &m.Channel, &m.Timestamp, &m.Text); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.NodeID = uint32(id)
		out = append(out, m)
	}
	return out, rows.Err()
}

// NodeIDs returns every node id present in this store, ascending by
// last_heard descending then id.
func (s *Store) NodeIDs(ctx context.Context) ([]uint32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id FROM nodes
		ORDER BY (last_heard IS NULL), last_heard DESC, node_id
	`)
	if err != nil {
		return nil, fmt.Errorf("enumerate nodes: %v: %w", err, merrors.ErrStoreUnavailable)
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint32(id))
	}
	return ids, rows.Err()
}

// Snapshot returns NodeSnapshots for every node in this store.
func (s *Store) Snapshot(ctx context.Context) ([]NodeSnapshot, error) {
	ids, err := s.NodeIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]NodeSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}
