package store

import (
	"context"
	"fmt"
	"sort"
)

// DumpEntry is one node's full state as rendered by Dump.
type DumpEntry struct {
	Info     NodeSnapshot           `json:"info"`
	Metrics  map[string]MetricPoint `json:"metrics,omitempty"`
	Position *PositionSnapshot      `json:"position,omitempty"`
}

// Dump renders every node in one store keyed by its canonical "!"-hex id.
// Latitude, longitude and altitude from the latest position also appear
// under the reserved metric names so the metric map is self-contained.
func (s *Store) Dump(ctx context.Context) (map[string]DumpEntry, error) {
	snaps, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]DumpEntry, len(snaps))
	for _, snap := range snaps {
		entry := DumpEntry{
			Info:     snap,
			Metrics:  snap.Metrics,
			Position: snap.Position,
		}
		if snap.Position != nil {
			if entry.Metrics == nil {
				entry.Metrics = make(map[string]MetricPoint)
			}
			addPositionMetrics(entry.Metrics, snap.Position)
		}
		// The info block carries metrics and position on its own fields
		// too; strip them there to keep the dump from repeating itself.
		entry.Info.Metrics = nil
		entry.Info.Position = nil

		out[fmt.Sprintf("!%08x", snap.NodeID)] = entry
	}
	return out, nil
}

func addPositionMetrics(m map[string]MetricPoint, pos *PositionSnapshot) {
	if pos.Latitude != nil {
		m["latitude"] = MetricPoint{Value: *pos.Latitude, Timestamp: pos.Timestamp}
	}
	if pos.Longitude != nil {
		m["longitude"] = MetricPoint{Value: *pos.Longitude, Timestamp: pos.Timestamp}
	}
	if pos.Altitude != nil {
		m["altitude"] = MetricPoint{Value: *pos.Altitude, Timestamp: pos.Timestamp}
	}
}

// ListNodes returns the latest snapshot of every node seen across all
// store files under the base path. A node heard by several owners
// collapses to whichever store heard it most recently.
func (r *Router) ListNodes(ctx context.Context) ([]NodeSnapshot, error) {
	owners, err := r.KnownNodeIDs()
	if err != nil {
		return nil, err
	}

	freshest := make(map[uint32]NodeSnapshot)
	for _, owner := range owners {
		lease, err := r.AcquireRead(ctx, owner)
		if err != nil {
			return nil, err
		}
		snaps, err := lease.Store().Snapshot(ctx)
		lease.Release()
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			if prev, ok := freshest[snap.NodeID]; !ok || snap.LastHeard > prev.LastHeard {
				freshest[snap.NodeID] = snap
			}
		}
	}

	out := make([]NodeSnapshot, 0, len(freshest))
	for _, snap := range freshest {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

// Dump renders the store owned by ownerID. The owner's store is created
// on first access, so dumping a never-written owner yields an empty map
// rather than an error.
func (r *Router) Dump(ctx context.Context, ownerID uint32) (map[string]DumpEntry, error) {
	lease, err := r.AcquireRead(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Store().Dump(ctx)
}
