// Package export writes metric history out of a store into Parquet files
// for offline analysis. The store stays the source of truth; exports are
// point-in-time snapshots.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"log/slog"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/pdxlocations/meshdb/internal/config"
	"github.com/pdxlocations/meshdb/internal/logging"
	"github.com/pdxlocations/meshdb/internal/store"
)

// HistoryRow is one exported metric reading.
type HistoryRow struct {
	NodeID    int64   `parquet:"node_id"`
	Metric    string  `parquet:"metric,zstd"`
	Timestamp int64   `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
}

// MessageRow is one exported message.
type MessageRow struct {
	NodeID    int64  `parquet:"node_id"`
	Channel   int32  `parquet:"channel"`
	Timestamp int64  `parquet:"timestamp"`
	Text      string `parquet:"text,zstd"`
}

// Exporter writes store contents to Parquet.
type Exporter struct {
	cfg config.ExportConfig
	log *slog.Logger
}

// NewExporter creates an exporter with the configured compression.
func NewExporter(cfg config.ExportConfig) *Exporter {
	return &Exporter{
		cfg: cfg,
		log: logging.Component("export"),
	}
}

func (e *Exporter) codec() compress.Codec {
	switch e.cfg.Compression {
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}

// ExportMetricHistory writes one node's history of one metric within
// [from, to] to path. It returns the number of rows written.
func (e *Exporter) ExportMetricHistory(ctx context.Context, s *store.Store, nodeID uint32, metric string, from, to int64, path string) (int, error) {
	hist, err := s.GetMetricHistory(ctx, nodeID, metric, from, to, 0)
	if err != nil {
		return 0, err
	}

	rows := make([]HistoryRow, len(hist))
	for i, p := range hist {
		rows[i] = HistoryRow{
			NodeID:    int64(nodeID),
			Metric:    metric,
			Timestamp: p.Timestamp,
			Value:     p.Value,
		}
	}
	return e.writeHistory(path, rows)
}

// ExportNodeHistory writes the full history of every metric a node has
// reported within [from, to] to path.
func (e *Exporter) ExportNodeHistory(ctx context.Context, s *store.Store, nodeID uint32, from, to int64, path string) (int, error) {
	snap, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return 0, err
	}

	var rows []HistoryRow
	for name := range snap.Metrics {
		hist, err := s.GetMetricHistory(ctx, nodeID, name, from, to, 0)
		if err != nil {
			return 0, err
		}
		for _, p := range hist {
			rows = append(rows, HistoryRow{
				NodeID:    int64(nodeID),
				Metric:    name,
				Timestamp: p.Timestamp,
				Value:     p.Value,
			})
		}
	}
	return e.writeHistory(path, rows)
}

func (e *Exporter) writeHistory(path string, rows []HistoryRow) (int, error) {
	f, err := createFile(path)
	if err != nil {
		return 0, err
	}

	w := parquet.NewGenericWriter[HistoryRow](f, parquet.Compression(e.codec()))
	n, err := w.Write(rows)
	if err != nil {
		w.Close()
		f.Close()
		return 0, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	e.log.Debug("history exported", "path", path, "rows", n)
	return n, nil
}

// ExportMessages writes a node's messages to path.
func (e *Exporter) ExportMessages(ctx context.Context, s *store.Store, nodeID uint32, path string) (int, error) {
	msgs, err := s.GetMessages(ctx, nodeID, 0)
	if err != nil {
		return 0, err
	}

	rows := make([]MessageRow, len(msgs))
	for i, m := range msgs {
		rows[i] = MessageRow{
			NodeID:    int64(m.NodeID),
			Channel:   int32(m.Channel),
			Timestamp: m.Timestamp,
			Text:      m.Text,
		}
	}

	f, err := createFile(path)
	if err != nil {
		return 0, err
	}

	w := parquet.NewGenericWriter[MessageRow](f, parquet.Compression(e.codec()))
	n, err := w.Write(rows)
	if err != nil {
		w.Close()
		f.Close()
		return 0, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("close writer: %w", err)
	}
	return n, f.Close()
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	return f, nil
}

// ReadHistory loads every row of a history export, mostly for verification
// and tooling.
func ReadHistory(path string) ([]HistoryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[HistoryRow](f)
	defer r.Close()

	out := make([]HistoryRow, 0, r.NumRows())
	buf := make([]HistoryRow, 256)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
	}
}
