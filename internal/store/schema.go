package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pdxlocations/meshdb/internal/merrors"
)

// currentSchemaVersion is the schema version this build reads and writes.
// A store written by a newer build cannot be migrated backwards.
const currentSchemaVersion = 2

// migrations maps a target version to the statements that bring a store
// from the previous version up to it. Statements are idempotent so a
// half-applied migration can be re-run.
var migrations = []struct {
	version    int
	statements []string
}{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS meta (
				key   VARCHAR PRIMARY KEY,
				value VARCHAR
			)`,
			`CREATE SEQUENCE IF NOT EXISTS row_seq START 1`,
			`CREATE TABLE IF NOT EXISTS nodes (
				node_id    BIGINT PRIMARY KEY,
				long_name  VARCHAR,
				short_name VARCHAR,
				hw_model   VARCHAR,
				role       VARCHAR,
				public_key VARCHAR,
				is_licensed BOOLEAN,
				last_heard BIGINT
			)`,
			`CREATE TABLE IF NOT EXISTS telemetry (
				node_id BIGINT NOT NULL,
				metric  VARCHAR NOT NULL,
				ts      BIGINT NOT NULL,
				value   DOUBLE NOT NULL,
				seq     BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_telemetry_key ON telemetry (node_id, metric, ts)`,
			`CREATE TABLE IF NOT EXISTS messages (
				node_id BIGINT NOT NULL,
				channel INTEGER NOT NULL,
				ts      BIGINT NOT NULL,
				text    VARCHAR NOT NULL,
				seq     BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_key ON messages (node_id, ts)`,
			`CREATE TABLE IF NOT EXISTS positions (
				node_id  BIGINT NOT NULL,
				ts       BIGINT NOT NULL,
				latitude  DOUBLE,
				longitude DOUBLE,
				altitude  DOUBLE,
				location_source VARCHAR,
				sats_in_view    INTEGER,
				precision_bits  INTEGER,
				seq      BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_positions_key ON positions (node_id, ts)`,
		},
	},
	{
		// Link-quality columns added after the initial cut; upgrades from
		// v1 stores must keep existing rows intact.
		version: 2,
		statements: []string{
			`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS snr DOUBLE`,
			`ALTER TABLE nodes ADD COLUMN IF NOT EXISTS hops_away INTEGER`,
		},
	},
}

// migrate brings the store schema up to currentSchemaVersion.
func (s *Store) migrate(ctx context.Context) error {
	stored, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if stored > currentSchemaVersion {
		return fmt.Errorf("store %s has schema v%d, this build supports up to v%d: %w",
			s.path, stored, currentSchemaVersion, merrors.ErrSchemaMismatch)
	}
	if stored == currentSchemaVersion {
		return nil
	}

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, m := range migrations {
			if m.version <= stored {
				continue
			}
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migrate %s to v%d: %v: %w",
						s.path, m.version, err, merrors.ErrStoreUnavailable)
				}
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES ('schema_version', ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, strconv.Itoa(currentSchemaVersion))
		return err
	})
}

// schemaVersion reads the stored schema version marker. A fresh or
// pre-versioning store reports 0.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	// meta may not exist yet on a fresh store.
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_name = 'meta'
	`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("inspect store %s: %v: %w", s.path, err, merrors.ErrStoreUnavailable)
	}
	if exists == 0 {
		return 0, nil
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version of %s: %v: %w", s.path, err, merrors.ErrStoreUnavailable)
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("store %s has malformed schema version %q: %w",
			s.path, raw, merrors.ErrSchemaMismatch)
	}
	return v, nil
}

// SchemaVersion exposes the stored schema version for diagnostics.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return s.schemaVersion(ctx)
}
