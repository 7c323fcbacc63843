package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdxlocations/meshdb/internal/merrors"
)

// ResolveNode maps a user-supplied identifier to a node id. The ladder, in
// order: decimal node number, "!"-prefixed hex id (with suffix fallback),
// exact long or short name (case-insensitive), bare hex id, hex id suffix,
// then name substring. Names outrank bare hex so a node short-named "4d" is
// not shadowed by an id ending in 4d; the "!" form is explicit and never
// collides with names. A rung that matches exactly one node wins; more
// than one match on the same rung is ErrAmbiguousLookup, and falling off
// the ladder is ErrNodeNotFound.
func (s *Store) ResolveNode(ctx context.Context, ident string) (uint32, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return 0, fmt.Errorf("empty identifier: %w", merrors.ErrInvalidIdentifier)
	}

	if n, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if ok, err := s.nodeExists(ctx, uint32(n)); err != nil {
			return 0, err
		} else if ok {
			return uint32(n), nil
		}
		return 0, fmt.Errorf("node %s: %w", ident, merrors.ErrNodeNotFound)
	}

	if hexPart, bang := strings.CutPrefix(ident, "!"); bang {
		if !isHex(hexPart) {
			return 0, fmt.Errorf("malformed node id %q: %w", ident, merrors.ErrInvalidIdentifier)
		}
		if id, ok, err := s.matchHex(ctx, hexPart); err != nil {
			return 0, err
		} else if ok {
			return id, nil
		}
		return 0, fmt.Errorf("node %s: %w", ident, merrors.ErrNodeNotFound)
	}

	if id, ok, err := s.matchNameExact(ctx, ident); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}

	if isHex(ident) {
		if id, ok, err := s.matchHex(ctx, ident); err != nil {
			return 0, err
		} else if ok {
			return id, nil
		}
	}

	return s.matchNameSubstring(ctx, ident)
}

// matchHex tries a hex string as a full node id, then as an id suffix.
func (s *Store) matchHex(ctx context.Context, hexPart string) (uint32, bool, error) {
	if n, err := strconv.ParseUint(hexPart, 16, 32); err == nil {
		if ok, err := s.nodeExists(ctx, uint32(n)); err != nil {
			return 0, false, err
		} else if ok {
			return uint32(n), true, nil
		}
	}
	id, err := s.matchHexSuffix(ctx, strings.ToLower(hexPart))
	if err != nil {
		return 0, false, err
	}
	return id, id != 0, nil
}

func isHex(s string) bool {
	if s == "" || len(s) > 8 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func (s *Store) nodeExists(ctx context.Context, nodeID uint32) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM nodes WHERE node_id = ?`, int64(nodeID)).Scan(&one)
	if err == nil {
		return true, nil
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	return false, fmt.Errorf("node lookup: %v: %w", err, merrors.ErrStoreUnavailable)
}

func (s *Store) matchHexSuffix(ctx context.Context, suffix string) (uint32, error) {
	ids, err := s.NodeIDs(ctx)
	if err != nil {
		return 0, err
	}

	var matches []uint32
	for _, id := range ids {
		if strings.HasSuffix(fmt.Sprintf("%08x", id), suffix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return 0, nil
	case 1:
		return matches[0], nil
	}
	return 0, fmt.Errorf("hex suffix %q matches %d nodes: %w",
		suffix, len(matches), merrors.ErrAmbiguousLookup)
}

type nameCandidate struct {
	id          uint32
	long, short string
}

func (s *Store) nameCandidates(ctx context.Context) ([]nameCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, long_name, short_name FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("name lookup: %v: %w", err, merrors.ErrStoreUnavailable)
	}
	defer rows.Close()

	var nodes []nameCandidate
	for rows.Next() {
		var id int64
		var long, short *string
		if err := rows.Scan(&id, &long, &short); err != nil {
			return nil, err
		}
		c := nameCandidate{id: uint32(id)}
		if long != nil {
			c.long = *long
		}
		if short != nil {
			c.short = *short
		}
		nodes = append(nodes, c)
	}
	return nodes, rows.Err()
}

func (s *Store) matchNameExact(ctx context.Context, name string) (uint32, bool, error) {
	nodes, err := s.nameCandidates(ctx)
	if err != nil {
		return 0, false, err
	}

	lower := strings.ToLower(name)
	var matches []uint32
	for _, c := range nodes {
		if (c.long != "" && strings.ToLower(c.long) == lower) ||
			(c.short != "" && strings.ToLower(c.short) == lower) {
			matches = append(matches, c.id)
		}
	}
	switch len(matches) {
	case 0:
		return 0, false, nil
	case 1:
		return matches[0], true, nil
	}
	return 0, false, fmt.Errorf("name %q matches %d nodes: %w",
		name, len(matches), merrors.ErrAmbiguousLookup)
}

func (s *Store) matchNameSubstring(ctx context.Context, name string) (uint32, error) {
	nodes, err := s.nameCandidates(ctx)
	if err != nil {
		return 0, err
	}

	lower := strings.ToLower(name)
	var matches []uint32
	for _, c := range nodes {
		if c.long != "" && strings.Contains(strings.ToLower(c.long), lower) {
			matches = append(matches, c.id)
			continue
		}
		if c.short != "" && strings.Contains(strings.ToLower(c.short), lower) {
			matches = append(matches, c.id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return 0, fmt.Errorf("node %q: %w", name, merrors.ErrNodeNotFound)
	}
	return 0, fmt.Errorf("name %q matches %d nodes: %w",
		name, len(matches), merrors.ErrAmbiguousLookup)
}

// GetMetric resolves an identifier and returns the latest value of the
// named metric for that node. Node metadata fields resolve through the
// same path and come back as the string form of a MetricPoint value.
func (s *Store) GetMetric(ctx context.Context, ident, metric string) (uint32, *MetricPoint, error) {
	nodeID, err := s.ResolveNode(ctx, ident)
	if err != nil {
		return 0, nil, err
	}
	p, err := s.GetMetricByID(ctx, nodeID, metric)
	if err != nil {
		return nodeID, nil, err
	}
	return nodeID, p, nil
}
