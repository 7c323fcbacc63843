package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pdxlocations/meshdb/internal/config"
	"github.com/pdxlocations/meshdb/internal/logging"
	"github.com/pdxlocations/meshdb/internal/merrors"
)

// storeFilePattern matches per-node store files under the base path.
var storeFilePattern = regexp.MustCompile(`^(\d+)\.duckdb$`)

// Router resolves node ids to their stores and enforces the
// single-writer-per-store discipline.
//
// The engine allows one database instance per file per process, so the
// router pools open stores for its lifetime and hands out per-operation
// leases instead of reopening per call. Writes against the same node are
// serialized behind a per-store lock with a bounded wait; different nodes
// proceed fully in parallel.
type Router struct {
	cfg *config.Config
	log interface {
		Debug(msg string, args ...any)
		Warn(msg string, args ...any)
	}

	mu      sync.Mutex
	entries map[uint32]*storeEntry
	closed  bool

	// group collapses concurrent open/create of the same store.
	group singleflight.Group
}

type storeEntry struct {
	store *Store
	// writer is a one-slot semaphore implementing the per-store writer lock.
	writer chan struct{}
}

// NewRouter creates a router over the configured base path.
func NewRouter(cfg *config.Config) (*Router, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, merrors.ErrInvalidConfig)
	}
	if fi, err := os.Stat(cfg.BasePath); err == nil && !fi.IsDir() {
		return nil, fmt.Errorf("base path %s is not a directory: %w",
			cfg.BasePath, merrors.ErrInvalidPath)
	}

	return &Router{
		cfg:     cfg,
		log:     logging.Component("router"),
		entries: make(map[uint32]*storeEntry),
	}, nil
}

// BasePath returns the directory holding the store files.
func (r *Router) BasePath() string {
	return r.cfg.BasePath
}

// StorePath returns the deterministic file path for a node's store.
func (r *Router) StorePath(nodeID uint32) string {
	return filepath.Join(r.cfg.BasePath, fmt.Sprintf("%d.duckdb", nodeID))
}

// Lease is an exclusively- or shared-held handle to one store, valid for
// one logical operation. Release must be called regardless of outcome.
type Lease struct {
	store   *Store
	release func()
	once    sync.Once
}

// Store returns the leased store.
func (l *Lease) Store() *Store {
	return l.store
}

// Release returns the lease. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Resolve opens (creating on first access) the store for nodeID and
// acquires its writer lock, waiting at most the configured lock budget.
// Exceeding the budget surfaces ErrWriteConflict; an unusable base path or
// backing file surfaces ErrStoreUnavailable.
func (r *Router) Resolve(ctx context.Context, nodeID uint32) (*Lease, error) {
	entry, err := r.entry(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	wait := time.NewTimer(r.cfg.LockWait)
	defer wait.Stop()

	select {
	case entry.writer <- struct{}{}:
		return &Lease{
			store:   entry.store,
			release: func() { <-entry.writer },
		}, nil
	case <-wait.C:
		return nil, fmt.Errorf("store %d writer lock not acquired within %v: %w",
			nodeID, r.cfg.LockWait, merrors.ErrWriteConflict)
	case <-ctx.Done():
		return nil, fmt.Errorf("store %d: %v: %w", nodeID, ctx.Err(), merrors.ErrWriteConflict)
	}
}

// AcquireRead opens the store for nodeID for a read batch. Reads proceed
// concurrently with each other and with an in-flight writer; the engine
// provides consistent reads.
func (r *Router) AcquireRead(ctx context.Context, nodeID uint32) (*Lease, error) {
	entry, err := r.entry(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return &Lease{store: entry.store, release: func() {}}, nil
}

// entry returns the pooled store entry for nodeID, opening it once.
func (r *Router) entry(ctx context.Context, nodeID uint32) (*storeEntry, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, merrors.ErrStoreClosed
	}
	if e, ok := r.entries[nodeID]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	key := strconv.FormatUint(uint64(nodeID), 10)
	v, err, _ := r.group.Do(key, func() (any, error) {
		// Re-check under the lock: another caller may have won the flight
		// for an earlier generation.
		r.mu.Lock()
		if e, ok := r.entries[nodeID]; ok {
			r.mu.Unlock()
			return e, nil
		}
		r.mu.Unlock()

		path := r.StorePath(nodeID)
		s, err := Open(path, nodeID)
		if err != nil {
			return nil, err
		}
		r.log.Debug("store opened", "node_id", nodeID, "path", path)

		e := &storeEntry{store: s, writer: make(chan struct{}, 1)}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			s.Close()
			return nil, merrors.ErrStoreClosed
		}
		r.entries[nodeID] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve store %d: %v: %w", nodeID, ctx.Err(), merrors.ErrStoreUnavailable)
	default:
	}

	return v.(*storeEntry), nil
}

// KnownNodeIDs enumerates the node ids with a store file under the base
// path, ascending. Stores created mid-enumeration may or may not appear;
// this is a best-effort snapshot, not a frozen view.
func (r *Router) KnownNodeIDs() ([]uint32, error) {
	dirents, err := os.ReadDir(r.cfg.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read base path %s: %v: %w", r.cfg.BasePath, err, merrors.ErrStoreUnavailable)
	}

	var ids []uint32
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		m := storeFilePattern.FindStringSubmatch(d.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(n))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close releases every pooled store. Further resolutions fail with
// ErrStoreClosed.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for id, e := range r.entries {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store %d: %w", id, err)
		}
	}
	r.entries = nil
	return firstErr
}
