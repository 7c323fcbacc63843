package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pdxlocations/meshdb/internal/merrors"
	"github.com/pdxlocations/meshdb/internal/packet"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func intPtr(i int) *int         { return &i }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1.duckdb")
	s, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func nodeInfoRecord(from uint32, rx int64, long, short string) *packet.Record {
	return &packet.Record{
		Kind:   packet.KindNodeInfo,
		From:   from,
		RxTime: rx,
		NodeInfo: &packet.NodeInfo{
			LongName:  strPtr(long),
			ShortName: strPtr(short),
		},
	}
}

func metric(name string, v float64) packet.Metric {
	return packet.Metric{Name: name, Value: v}
}

func telemetryRecord(from uint32, ts int64, metrics ...packet.Metric) *packet.Record {
	return &packet.Record{
		Kind:      packet.KindTelemetry,
		From:      from,
		RxTime:    ts,
		Telemetry: &packet.Telemetry{Timestamp: ts, Metrics: metrics},
	}
}

func mustApply(t *testing.T, s *Store, rec *packet.Record) ApplyResult {
	t.Helper()
	res, err := s.Apply(context.Background(), rec)
	if err != nil {
		t.Fatalf("Apply %s: %v", rec.Kind, err)
	}
	return res
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", v, currentSchemaVersion)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "7.duckdb")

	s, err := Open(path, 7)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	mustApply(t, s, nodeInfoRecord(42, 100, "TestNode", "TN"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must migrate cleanly and preserve data.
	s, err = Open(path, 7)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s.Close()

	snap, err := s.GetNode(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetNode after reopen: %v", err)
	}
	if snap.LongName == nil || *snap.LongName != "TestNode" {
		t.Errorf("long name not preserved across reopen: %+v", snap.LongName)
	}
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "3.duckdb")

	s, err := Open(path, 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Simulate a store written by a future build.
	if _, err := s.db.Exec(
		`UPDATE meta SET value = '99' WHERE key = 'schema_version'`); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = Open(path, 3)
	if !merrors.Is(err, merrors.ErrSchemaMismatch) {
		t.Errorf("reopen of newer-schema store err = %v, want ErrSchemaMismatch", err)
	}
}

func TestGetNodeUnknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetNode(context.Background(), 999)
	if !merrors.Is(err, merrors.ErrNodeNotFound) {
		t.Errorf("GetNode(999) err = %v, want ErrNodeNotFound", err)
	}
}
