// Package store implements the per-node storage engine.
//
// Each mesh node owns one file-backed DuckDB database under the configured
// base path, holding that node's view of the network: node metadata rows,
// append-only telemetry and message history, and position history. The
// Router owns store lifecycles and enforces the single-writer-per-store
// discipline; Store methods assume the caller holds the appropriate lease.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/pdxlocations/meshdb/internal/merrors"
)

// Store is an open per-node database.
//
// Store is safe for concurrent reads; writes must be serialized through a
// router write lease.
type Store struct {
	db     *sql.DB
	path   string
	nodeID uint32
}

// Open opens (creating if absent) the store file at path for the given
// owner node, and brings its schema up to the current version.
func Open(path string, nodeID uint32) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create base path %s: %v: %w", filepath.Dir(path), err, merrors.ErrStoreUnavailable)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %v: %w", path, err, merrors.ErrStoreUnavailable)
	}

	// One database instance per file; connection pooling beyond that is
	// handled by database/sql.
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store %s: %v: %w", path, err, merrors.ErrStoreUnavailable)
	}

	s := &Store{db: db, path: path, nodeID: nodeID}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// NodeID returns the owner node id this store belongs to.
func (s *Store) NodeID() uint32 {
	return s.nodeID
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction executes fn within a transaction, rolling back on error.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}
