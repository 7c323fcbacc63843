// Package ingest turns raw packet envelopes into stored rows. It owns the
// classify-then-apply pipeline and the policy that malformed traffic is
// skipped, not fatal: a mesh radio forwards whatever its neighbors emit,
// and one garbled packet must never stall the feed.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"log/slog"

	"github.com/pdxlocations/meshdb/internal/logging"
	"github.com/pdxlocations/meshdb/internal/packet"
	"github.com/pdxlocations/meshdb/internal/store"
)

// Stats are cumulative counters for one ingest service.
type Stats struct {
	Received  uint64 `json:"received"`
	Stored    uint64 `json:"stored"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
	NodeInfo  uint64 `json:"nodeinfo"`
	Telemetry uint64 `json:"telemetry"`
	Messages  uint64 `json:"messages"`
	Positions uint64 `json:"positions"`
}

// Service ingests packets into per-owner stores through a router.
type Service struct {
	router *store.Router
	log    *slog.Logger

	received  atomic.Uint64
	stored    atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
	nodeinfo  atomic.Uint64
	telemetry atomic.Uint64
	messages  atomic.Uint64
	positions atomic.Uint64
}

// NewService creates an ingest service over the given router.
func NewService(router *store.Router) *Service {
	return &Service{
		router: router,
		log:    logging.Component("ingest"),
	}
}

// HandlePacket classifies one envelope and applies it to the store owned
// by ownerID. Packets that classify to no category are skipped silently
// apart from a debug log; the zero result reports zero rows written.
// Storage failures are returned to the caller.
func (s *Service) HandlePacket(ctx context.Context, env *packet.Envelope, ownerID uint32) (store.ApplyResult, error) {
	s.received.Add(1)

	rec, ok := packet.Classify(env)
	if !ok {
		s.skipped.Add(1)
		s.log.Debug("packet skipped",
			"owner", ownerID, "from", env.From, "port", env.PortName())
		return store.ApplyResult{}, nil
	}

	ctx = logging.ContextWithNodeID(ctx, ownerID)

	lease, err := s.router.Resolve(ctx, ownerID)
	if err != nil {
		s.failed.Add(1)
		return store.ApplyResult{}, fmt.Errorf("resolve store for owner %d: %w", ownerID, err)
	}
	defer lease.Release()

	res, err := lease.Store().Apply(ctx, &rec)
	if err != nil {
		s.failed.Add(1)
		return store.ApplyResult{}, fmt.Errorf("apply %s from %d: %w", rec.Kind, rec.From, err)
	}

	s.stored.Add(1)
	switch rec.Kind {
	case packet.KindNodeInfo:
		s.nodeinfo.Add(1)
	case packet.KindTelemetry:
		s.telemetry.Add(1)
	case packet.KindMessage:
		s.messages.Add(1)
	case packet.KindPosition:
		s.positions.Add(1)
	}

	s.log.Debug("packet stored",
		"owner", ownerID, "from", rec.From, "kind", rec.Kind.String(),
		"rows", res.RowsWritten)
	return res, nil
}

// Stats returns a snapshot of the cumulative counters.
func (s *Service) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Stored:    s.stored.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		NodeInfo:  s.nodeinfo.Load(),
		Telemetry: s.telemetry.Load(),
		Messages:  s.messages.Load(),
		Positions: s.positions.Load(),
	}
}
