// Package meshdb stores mesh-radio telemetry in per-node relational
// databases. Each node that feeds packets in owns one database file under
// a common base path; inside it, everything is keyed by the sending node.
//
// The typical embedding wires a radio callback to HandlePacket and reads
// back through GetNode, GetMetric and friends:
//
//	db, err := meshdb.Open(nil)
//	...
//	db.HandlePacket(ctx, env, ownerID)
//	snap, err := db.GetNode(ctx, ownerID, senderID)
package meshdb

import (
	"context"
	"sync"

	"github.com/pdxlocations/meshdb/internal/config"
	"github.com/pdxlocations/meshdb/internal/export"
	"github.com/pdxlocations/meshdb/internal/ingest"
	"github.com/pdxlocations/meshdb/internal/packet"
	"github.com/pdxlocations/meshdb/internal/store"
)

// Re-exported types so embedders need only this package.
type (
	// Config configures a DB. The zero value plus DefaultConfig defaults
	// is valid.
	Config = config.Config

	// Envelope is a decoded packet handed to HandlePacket.
	Envelope = packet.Envelope

	// NodeSnapshot is the latest known state of one node.
	NodeSnapshot = store.NodeSnapshot

	// MetricPoint is one metric reading.
	MetricPoint = store.MetricPoint

	// HistoryPoint is one row of metric history.
	HistoryPoint = store.HistoryPoint

	// StoredMessage is one stored text message.
	StoredMessage = store.StoredMessage

	// MetricSummary is windowed statistics over one metric.
	MetricSummary = store.MetricSummary

	// DumpEntry is one node's state in a Dump.
	DumpEntry = store.DumpEntry

	// ApplyResult reports what one ingested packet wrote.
	ApplyResult = store.ApplyResult

	// Stats are cumulative ingestion counters.
	Stats = ingest.Stats
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// LoadConfig reads a YAML config file, applying defaults for absent keys.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

var (
	defaultBasePathMu sync.Mutex
	defaultBasePath   string
)

// SetDefaultBasePath sets the process-wide base path applied when Open is
// called with an empty Config.BasePath. It exists for embedders that
// configure the path once at startup; explicit config always wins.
func SetDefaultBasePath(path string) {
	defaultBasePathMu.Lock()
	defer defaultBasePathMu.Unlock()
	defaultBasePath = path
}

func fallbackBasePath() string {
	defaultBasePathMu.Lock()
	defer defaultBasePathMu.Unlock()
	return defaultBasePath
}

// DB is the top-level handle: a router over per-node store files, an
// ingest pipeline, and a Parquet exporter, sharing one config.
type DB struct {
	cfg      *Config
	router   *store.Router
	ingest   *ingest.Service
	exporter *export.Exporter
}

// Open creates a DB over cfg.BasePath. A nil cfg uses DefaultConfig; an
// empty BasePath falls back to SetDefaultBasePath, then to the config
// default. Store files are created lazily on first write per owner.
func Open(cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else {
		c := *cfg
		cfg = &c
	}
	if cfg.BasePath == "" {
		if p := fallbackBasePath(); p != "" {
			cfg.BasePath = p
		} else {
			cfg.BasePath = config.DefaultConfig().BasePath
		}
	}

	router, err := store.NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{
		cfg:      cfg,
		router:   router,
		ingest:   ingest.NewService(router),
		exporter: export.NewExporter(cfg.Export),
	}, nil
}

// HandlePacket classifies env and applies it to ownerID's store.
// Unclassifiable packets are dropped without error.
func (db *DB) HandlePacket(ctx context.Context, env *Envelope, ownerID uint32) (ApplyResult, error) {
	return db.ingest.HandlePacket(ctx, env, ownerID)
}

// Stats returns cumulative ingestion counters.
func (db *DB) Stats() Stats {
	return db.ingest.Stats()
}

// GetNode returns the latest state of nodeID as recorded in ownerID's
// store.
func (db *DB) GetNode(ctx context.Context, ownerID, nodeID uint32) (*NodeSnapshot, error) {
	lease, err := db.router.AcquireRead(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Store().GetNode(ctx, nodeID)
}

// GetMetric resolves ident (id, !hex, hex suffix, or name) within ownerID's
// store and returns the latest value of metric for that node.
func (db *DB) GetMetric(ctx context.Context, ownerID uint32, ident, metric string) (uint32, *MetricPoint, error) {
	lease, err := db.router.AcquireRead(ctx, ownerID)
	if err != nil {
		return 0, nil, err
	}
	defer lease.Release()
	return lease.Store().GetMetric(ctx, ident, metric)
}

// GetMetricHistory returns nodeID's history of metric within [from, to],
// ascending. limit <= 0 applies the configured history limit.
func (db *DB) GetMetricHistory(ctx context.Context, ownerID, nodeID uint32, metric string, from, to int64, limit int) ([]HistoryPoint, error) {
	if limit <= 0 {
		limit = db.cfg.Query.HistoryLimit
	}
	lease, err := db.router.AcquireRead(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Store().GetMetricHistory(ctx, nodeID, metric, from, to, limit)
}

// GetMessages returns nodeID's stored messages from ownerID's store.
func (db *DB) GetMessages(ctx context.Context, ownerID, nodeID uint32, limit int) ([]StoredMessage, error) {
	lease, err := db.router.AcquireRead(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Store().GetMessages(ctx, nodeID, limit)
}

// Summarize returns windowed statistics over one metric.
func (db *DB) Summarize(ctx context.Context, ownerID, nodeID uint32, metric string, from, to int64) (*MetricSummary, error) {
	lease, err := db.router.AcquireRead(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Store().Summarize(ctx, nodeID, metric, from, to)
}

// ListNodes returns every node seen across all stores under the base path,
// ordered by node id. A node heard by several owners reports its freshest
// sighting.
func (db *DB) ListNodes(ctx context.Context) ([]NodeSnapshot, error) {
	return db.router.ListNodes(ctx)
}

// Dump renders ownerID's entire store keyed by canonical node id.
func (db *DB) Dump(ctx context.Context, ownerID uint32) (map[string]DumpEntry, error) {
	return db.router.Dump(ctx, ownerID)
}

// KnownOwners lists the owner node ids with a store file on disk.
func (db *DB) KnownOwners() ([]uint32, error) {
	return db.router.KnownNodeIDs()
}

// ExportMetricHistory writes nodeID's history of metric within [from, to]
// to a Parquet file at path.
func (db *DB) ExportMetricHistory(ctx context.Context, ownerID, nodeID uint32, metric string, from, to int64, path string) (int, error) {
	lease, err := db.router.AcquireRead(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	defer lease.Release()
	return db.exporter.ExportMetricHistory(ctx, lease.Store(), nodeID, metric, from, to, path)
}

// Close releases every open store. The DB is unusable afterwards.
func (db *DB) Close() error {
	return db.router.Close()
}
