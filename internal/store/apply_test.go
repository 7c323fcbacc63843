package store

import (
	"context"
	"testing"

	"github.com/pdxlocations/meshdb/internal/merrors"
	"github.com/pdxlocations/meshdb/internal/packet"
)

func TestNodeInfoFieldRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustApply(t, s, &packet.Record{
		Kind: packet.KindNodeInfo, From: 10, RxTime: 100,
		NodeInfo: &packet.NodeInfo{
			LongName:  strPtr("Base Camp"),
			ShortName: strPtr("BC"),
			HWModel:   strPtr("TBEAM"),
			Role:      strPtr("ROUTER"),
		},
	})

	// A later update naming only the long name must leave every other
	// field exactly as stored.
	mustApply(t, s, &packet.Record{
		Kind: packet.KindNodeInfo, From: 10, RxTime: 200,
		NodeInfo: &packet.NodeInfo{LongName: strPtr("Base Camp 2")},
	})

	snap, err := s.GetNode(ctx, 10)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got := *snap.LongName; got != "Base Camp 2" {
		t.Errorf("long_name = %q, want %q", got, "Base Camp 2")
	}
	if snap.ShortName == nil || *snap.ShortName != "BC" {
		t.Errorf("short_name lost on partial update: %v", snap.ShortName)
	}
	if snap.HWModel == nil || *snap.HWModel != "TBEAM" {
		t.Errorf("hw_model lost on partial update: %v", snap.HWModel)
	}
	if snap.Role == nil || *snap.Role != "ROUTER" {
		t.Errorf("role lost on partial update: %v", snap.Role)
	}
}

func TestLastHeardMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustApply(t, s, telemetryRecord(5, 1000, packet.Metric{Name: "battery_level", Value: 80}))
	// Out-of-order arrival with an older receive time.
	mustApply(t, s, telemetryRecord(5, 500, packet.Metric{Name: "battery_level", Value: 90}))

	snap, err := s.GetNode(ctx, 5)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if snap.LastHeard != 1000 {
		t.Errorf("last_heard = %d, want 1000 (must not move backward)", snap.LastHeard)
	}
}

func TestEveryKindTouchesNodeRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustApply(t, s, &packet.Record{
		Kind: packet.KindMessage, From: 77, RxTime: 300,
		SNR: f64Ptr(-7.25), HopsAway: intPtr(2),
		Message: &packet.Message{Channel: 0, Timestamp: 300, Text: "ping"},
	})

	snap, err := s.GetNode(ctx, 77)
	if err != nil {
		t.Fatalf("message sender has no node row: %v", err)
	}
	if snap.LastHeard != 300 {
		t.Errorf("last_heard = %d, want 300", snap.LastHeard)
	}
	if snap.SNR == nil || *snap.SNR != -7.25 {
		t.Errorf("snr = %v, want -7.25", snap.SNR)
	}
	if snap.HopsAway == nil || *snap.HopsAway != 2 {
		t.Errorf("hops_away = %v, want 2", snap.HopsAway)
	}
}

func TestSNRSurvivesSilentPacket(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := telemetryRecord(8, 100, packet.Metric{Name: "battery_level", Value: 50})
	rec.SNR = f64Ptr(3.5)
	mustApply(t, s, rec)

	// Next packet reports no SNR; the stored value must remain.
	mustApply(t, s, telemetryRecord(8, 200, packet.Metric{Name: "battery_level", Value: 49}))

	snap, err := s.GetNode(ctx, 8)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if snap.SNR == nil || *snap.SNR != 3.5 {
		t.Errorf("snr = %v, want retained 3.5", snap.SNR)
	}
}

func TestTelemetryBatchAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res := mustApply(t, s, telemetryRecord(3, 1000,
		packet.Metric{Name: "battery_level", Value: 76},
		packet.Metric{Name: "voltage", Value: 3.91},
		packet.Metric{Name: "channel_utilization", Value: 11.5},
	))
	if res.RowsWritten != 3 {
		t.Errorf("RowsWritten = %d, want 3", res.RowsWritten)
	}

	snap, err := s.GetNode(ctx, 3)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if len(snap.Metrics) != 3 {
		t.Fatalf("metrics = %d, want 3: %v", len(snap.Metrics), snap.Metrics)
	}
	if got := snap.Metrics["voltage"].Value; got != 3.91 {
		t.Errorf("voltage = %v, want 3.91", got)
	}
}

func TestLatestTieBreakByInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Two readings share a timestamp; the later insert must win, and keep
	// winning on repeated reads.
	mustApply(t, s, telemetryRecord(4, 500, packet.Metric{Name: "battery_level", Value: 60}))
	mustApply(t, s, telemetryRecord(4, 500, packet.Metric{Name: "battery_level", Value: 61}))

	for i := 0; i < 5; i++ {
		p, err := s.GetMetricByID(ctx, 4, "battery_level")
		if err != nil {
			t.Fatalf("GetMetricByID: %v", err)
		}
		if p.Value != 61 {
			t.Fatalf("read %d: latest = %v, want 61 (pinned)", i, p.Value)
		}
	}
}

func TestPositionAppend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustApply(t, s, &packet.Record{
		Kind: packet.KindPosition, From: 9, RxTime: 100,
		Position: &packet.Position{
			Timestamp: 100,
			Latitude:  f64Ptr(45.5231),
			Longitude: f64Ptr(-122.6765),
			Altitude:  f64Ptr(15),
		},
	})
	mustApply(t, s, &packet.Record{
		Kind: packet.KindPosition, From: 9, RxTime: 200,
		Position: &packet.Position{
			Timestamp: 200,
			Latitude:  f64Ptr(45.5240),
			Longitude: f64Ptr(-122.6700),
		},
	})

	snap, err := s.GetNode(ctx, 9)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if snap.Position == nil {
		t.Fatal("no position on snapshot")
	}
	if *snap.Position.Latitude != 45.5240 {
		t.Errorf("latest latitude = %v, want 45.5240", *snap.Position.Latitude)
	}

	// Altitude was absent from the newer fix; the positions table is
	// append-only, so the reserved metric falls back to the older row.
	alt, err := s.GetMetricByID(ctx, 9, "altitude")
	if err != nil {
		t.Fatalf("altitude metric: %v", err)
	}
	if alt.Value != 15 {
		t.Errorf("altitude = %v, want 15", alt.Value)
	}
}

func TestApplyUnknownKindRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, &packet.Record{Kind: packet.KindUnknown, From: 1, RxTime: 1})
	if err == nil {
		t.Fatal("applying an unknown record succeeded, want error")
	}
	// A rejected record is a caller bug, not a storage failure.
	if merrors.Is(err, merrors.ErrStoreUnavailable) {
		t.Errorf("unknown-kind err = %v, must not report ErrStoreUnavailable", err)
	}

	// The rejection happens before any write; no node row appears.
	if _, err := s.GetNode(ctx, 1); !merrors.Is(err, merrors.ErrNodeNotFound) {
		t.Errorf("rejected record left a node row: %v", err)
	}
}
