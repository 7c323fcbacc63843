package store

import (
	"context"
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/pdxlocations/meshdb/internal/merrors"
)

// MetricSummary holds running statistics over one metric's history window.
type MetricSummary struct {
	Metric  string  `json:"metric"`
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	FirstTs int64   `json:"first_ts"`
	LastTs  int64   `json:"last_ts"`

	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Summarize streams a metric's history within [from, to] through a DDSketch
// and returns count, extremes, average and percentiles. A metric with no
// rows in the window is ErrMetricNotFound.
func (s *Store) Summarize(ctx context.Context, nodeID uint32, metric string, from, to int64) (*MetricSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value
		FROM telemetry
		WHERE node_id = ? AND metric = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, seq ASC
	`, int64(nodeID), metric, from, to)
	if err != nil {
		return nil, fmt.Errorf("summarize %q for %d: %v: %w", metric, nodeID, err, merrors.ErrStoreUnavailable)
	}
	defer rows.Close()

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return nil, fmt.Errorf("create sketch: %w", err)
	}

	sum := &MetricSummary{
		Metric: metric,
		Min:    math.MaxFloat64,
		Max:    -math.MaxFloat64,
	}
	for rows.Next() {
		var ts int64
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}

		sum.Count++
		sum.Sum += v
		if v < sum.Min {
			sum.Min = v
		}
		if v > sum.Max {
			sum.Max = v
		}
		if sum.FirstTs == 0 || ts < sum.FirstTs {
			sum.FirstTs = ts
		}
		if ts > sum.LastTs {
			sum.LastTs = ts
		}
		// The sketch rejects values it cannot index, such as NaN.
		if err := sketch.Add(v); err != nil {
			return nil, fmt.Errorf("sketch value %v for %q: %w", v, metric, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if sum.Count == 0 {
		return nil, fmt.Errorf("node %d metric %q: %w", nodeID, metric, merrors.ErrMetricNotFound)
	}

	sum.Avg = sum.Sum / float64(sum.Count)
	sum.P50, _ = sketch.GetValueAtQuantile(0.50)
	sum.P90, _ = sketch.GetValueAtQuantile(0.90)
	sum.P95, _ = sketch.GetValueAtQuantile(0.95)
	sum.P99, _ = sketch.GetValueAtQuantile(0.99)

	return sum, nil
}
