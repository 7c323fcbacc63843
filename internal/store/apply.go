package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pdxlocations/meshdb/internal/merrors"
	"github.com/pdxlocations/meshdb/internal/packet"
)

// ApplyResult reports what one apply call wrote.
type ApplyResult struct {
	Kind        packet.Kind
	RowsWritten int
	Timestamp   int64
}

// Apply writes one classified record into the store using its category's
// merge semantics. The caller must hold the store's write lease.
//
// All rows of a record commit together or not at all: a telemetry packet
// with five metrics never leaves a partially-visible write, and the
// last-heard touch on the sender's node row rides the same transaction.
func (s *Store) Apply(ctx context.Context, rec *packet.Record) (ApplyResult, error) {
	switch rec.Kind {
	case packet.KindNodeInfo, packet.KindTelemetry, packet.KindMessage, packet.KindPosition:
	default:
		// Caller bug, not a storage failure; stays outside the
		// ErrStoreUnavailable taxonomy.
		return ApplyResult{}, fmt.Errorf("record kind %s cannot be applied", rec.Kind)
	}

	res := ApplyResult{Kind: rec.Kind, Timestamp: rec.RxTime}

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		// Every packet advances the sender's last-heard, whatever its kind.
		if err := touchNode(ctx, tx, rec); err != nil {
			return err
		}

		switch rec.Kind {
		case packet.KindNodeInfo:
			if err := upsertNodeInfo(ctx, tx, rec); err != nil {
				return err
			}
			res.RowsWritten = 1

		case packet.KindTelemetry:
			n, err := appendTelemetry(ctx, tx, rec)
			if err != nil {
				return err
			}
			res.RowsWritten = n
			res.Timestamp = rec.Telemetry.Timestamp

		case packet.KindMessage:
			if err := appendMessage(ctx, tx, rec); err != nil {
				return err
			}
			res.RowsWritten = 1
			res.Timestamp = rec.Message.Timestamp

		case packet.KindPosition:
			if err := appendPosition(ctx, tx, rec); err != nil {
				return err
			}
			res.RowsWritten = 1
			res.Timestamp = rec.Position.Timestamp
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply %s to %s: %v: %w",
			rec.Kind, s.path, err, merrors.ErrStoreUnavailable)
	}

	return res, nil
}

// touchNode creates the sender's node row if absent and advances
// last_heard monotonically, recording link quality when reported.
func touchNode(ctx context.Context, tx *sql.Tx, rec *packet.Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (node_id, last_heard, snr, hops_away)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (node_id) DO UPDATE SET
			last_heard = greatest(coalesce(nodes.last_heard, 0), excluded.last_heard),
			snr        = coalesce(excluded.snr, nodes.snr),
			hops_away  = coalesce(excluded.hops_away, nodes.hops_away)
	`, int64(rec.From), rec.RxTime, rec.SNR, rec.HopsAway)
	return err
}

// upsertNodeInfo merges the present fields of a node-info record into the
// sender's node row. Absent fields keep their stored values.
func upsertNodeInfo(ctx context.Context, tx *sql.Tx, rec *packet.Record) error {
	ni := rec.NodeInfo

	set := make([]string, 0, 6)
	args := make([]any, 0, 7)

	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}

	if ni.LongName != nil {
		add("long_name", *ni.LongName)
	}
	if ni.ShortName != nil {
		add("short_name", *ni.ShortName)
	}
	if ni.HWModel != nil {
		add("hw_model", *ni.HWModel)
	}
	if ni.Role != nil {
		add("role", *ni.Role)
	}
	if ni.PublicKey != nil {
		add("public_key", *ni.PublicKey)
	}
	if ni.IsLicensed != nil {
		add("is_licensed", *ni.IsLicensed)
	}

	if len(set) == 0 {
		return nil
	}

	// touchNode already guaranteed the row exists.
	args = append(args, int64(rec.From))
	_, err := tx.ExecContext(ctx,
		"UPDATE nodes SET "+strings.Join(set, ", ")+" WHERE node_id = ?", args...)
	return err
}

// appendTelemetry inserts one history row per metric with a shared
// timestamp. The store-local sequence pins insertion order for the
// latest-value tie-break.
func appendTelemetry(ctx context.Context, tx *sql.Tx, rec *packet.Record) (int, error) {
	tel := rec.Telemetry
	if len(tel.Metrics) == 0 {
		return 0, nil
	}

	var query strings.Builder
	query.Grow(100 + len(tel.Metrics)*60)
	query.WriteString(`INSERT INTO telemetry (node_id, metric, ts, value, seq) VALUES `)

	args := make([]any, 0, len(tel.Metrics)*4)
	for i, m := range tel.Metrics {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString("(?, ?, ?, ?, nextval('row_seq'))")
		args = append(args, int64(rec.From), m.Name, tel.Timestamp, m.Value)
	}

	if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
		return 0, err
	}
	return len(tel.Metrics), nil
}

// appendMessage appends a message row. Duplicate deliveries produce
// duplicate rows; delivery semantics belong to the network layer.
func appendMessage(ctx context.Context, tx *sql.Tx, rec *packet.Record) error {
	m := rec.Message
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (node_id, channel, ts, text, seq)
		VALUES (?, ?, ?, ?, nextval('row_seq'))
	`, int64(rec.From), m.Channel, m.Timestamp, m.Text)
	return err
}

// appendPosition appends a position history row.
func appendPosition(ctx context.Context, tx *sql.Tx, rec *packet.Record) error {
	p := rec.Position
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions
			(node_id, ts, latitude, longitude, altitude, location_source, sats_in_view, precision_bits, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, nextval('row_seq'))
	`, int64(rec.From), p.Timestamp, p.Latitude, p.Longitude, p.Altitude,
		p.LocationSource, p.SatsInView, p.PrecisionBits)
	return err
}
