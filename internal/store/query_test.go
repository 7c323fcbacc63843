package store

import (
	"context"
	"testing"

	"github.com/pdxlocations/meshdb/internal/merrors"
	"github.com/pdxlocations/meshdb/internal/packet"
)

func TestMetricHistoryOrderAndRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, v := range []float64{70, 71, 69, 72} {
		mustApply(t, s, telemetryRecord(2, int64(100*(i+1)),
			packet.Metric{Name: "battery_level", Value: v}))
	}

	hist, err := s.GetMetricHistory(ctx, 2, "battery_level", 0, 10_000, 0)
	if err != nil {
		t.Fatalf("GetMetricHistory: %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("history length = %d, want 4", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp < hist[i-1].Timestamp {
			t.Errorf("history out of order at %d: %v", i, hist)
		}
	}
	if hist[0].Value != 70 || hist[3].Value != 72 {
		t.Errorf("history values = %v", hist)
	}

	// Bounded window.
	hist, err = s.GetMetricHistory(ctx, 2, "battery_level", 150, 350, 0)
	if err != nil {
		t.Fatalf("windowed history: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("windowed history length = %d, want 2: %v", len(hist), hist)
	}

	// Limit.
	hist, err = s.GetMetricHistory(ctx, 2, "battery_level", 0, 10_000, 3)
	if err != nil {
		t.Fatalf("limited history: %v", err)
	}
	if len(hist) != 3 {
		t.Errorf("limited history length = %d, want 3", len(hist))
	}
}

func TestMetricHistoryEmptyRange(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s, telemetryRecord(2, 100, packet.Metric{Name: "battery_level", Value: 70}))

	hist, err := s.GetMetricHistory(context.Background(), 2, "battery_level", 5000, 9000, 0)
	if err != nil {
		t.Fatalf("empty range returned error: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("empty range returned %d points", len(hist))
	}
}

func TestHistoryPreservesDuplicateTimestamps(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s, telemetryRecord(6, 300, packet.Metric{Name: "voltage", Value: 3.8}))
	mustApply(t, s, telemetryRecord(6, 300, packet.Metric{Name: "voltage", Value: 3.7}))

	hist, err := s.GetMetricHistory(context.Background(), 6, "voltage", 0, 1000, 0)
	if err != nil {
		t.Fatalf("GetMetricHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want both same-timestamp rows", len(hist))
	}
	if hist[0].Value != 3.8 || hist[1].Value != 3.7 {
		t.Errorf("insertion order not preserved: %v", hist)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	texts := []string{"hello mesh", "anyone near the ridge?", "heading back"}
	for i, txt := range texts {
		mustApply(t, s, &packet.Record{
			Kind: packet.KindMessage, From: 11, RxTime: int64(10 * (i + 1)),
			Message: &packet.Message{Channel: i % 2, Timestamp: int64(10 * (i + 1)), Text: txt},
		})
	}

	msgs, err := s.GetMessages(ctx, 11, 0)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != len(texts) {
		t.Fatalf("messages = %d, want %d", len(msgs), len(texts))
	}
	for i, m := range msgs {
		if m.Text != texts[i] {
			t.Errorf("message %d = %q, want %q", i, m.Text, texts[i])
		}
		if m.Channel != i%2 {
			t.Errorf("message %d channel = %d, want %d", i, m.Channel, i%2)
		}
	}

	msgs, err = s.GetMessages(ctx, 11, 2)
	if err != nil {
		t.Fatalf("limited GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("limited messages = %d, want 2", len(msgs))
	}
}

func TestGetMetricUnknownName(t *testing.T) {
	s := openTestStore(t)

	mustApply(t, s, telemetryRecord(2, 100, packet.Metric{Name: "battery_level", Value: 70}))

	_, err := s.GetMetricByID(context.Background(), 2, "flux_capacitance")
	if !merrors.Is(err, merrors.ErrMetricNotFound) {
		t.Errorf("unknown metric err = %v, want ErrMetricNotFound", err)
	}
}

func TestDisplayNameFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Node heard only through telemetry never gets a stored name.
	mustApply(t, s, telemetryRecord(0xa1b2c3d4, 100, packet.Metric{Name: "battery_level", Value: 50}))

	snap, err := s.GetNode(ctx, 0xa1b2c3d4)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if snap.LongName != nil {
		t.Errorf("long_name stored for nameless node: %v", *snap.LongName)
	}
	if got := snap.DisplayName(); got != "Meshtastic c3d4" {
		t.Errorf("DisplayName = %q, want %q", got, "Meshtastic c3d4")
	}
	if got := snap.ShortDisplayName(); got != "c3d4" {
		t.Errorf("ShortDisplayName = %q, want %q", got, "c3d4")
	}
}

func TestDump(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustApply(t, s, nodeInfoRecord(0x10, 100, "Relay One", "R1"))
	mustApply(t, s, telemetryRecord(0x10, 150, packet.Metric{Name: "battery_level", Value: 88}))
	mustApply(t, s, &packet.Record{
		Kind: packet.KindPosition, From: 0x10, RxTime: 160,
		Position: &packet.Position{Timestamp: 160, Latitude: f64Ptr(45.5), Longitude: f64Ptr(-122.6)},
	})

	dump, err := s.Dump(ctx)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	entry, ok := dump["!00000010"]
	if !ok {
		t.Fatalf("dump missing node key, got keys %v", keysOf(dump))
	}
	if entry.Info.DisplayName() != "Relay One" {
		t.Errorf("dump display name = %q", entry.Info.DisplayName())
	}
	if entry.Metrics["battery_level"].Value != 88 {
		t.Errorf("dump battery_level = %v", entry.Metrics["battery_level"])
	}
	if entry.Metrics["latitude"].Value != 45.5 {
		t.Errorf("dump latitude metric = %v", entry.Metrics["latitude"])
	}
	if entry.Position == nil || *entry.Position.Longitude != -122.6 {
		t.Errorf("dump position = %+v", entry.Position)
	}
}

func keysOf(m map[string]DumpEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
