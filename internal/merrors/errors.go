// Package merrors consolidates error definitions for the meshdb module.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities
package merrors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Storage errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreClosed      = errors.New("store is closed")
	ErrSchemaMismatch   = errors.New("schema version mismatch")
	ErrWriteConflict    = errors.New("write conflict")

	// Lookup errors
	ErrNodeNotFound      = errors.New("node not found")
	ErrMetricNotFound    = errors.New("metric not found")
	ErrAmbiguousLookup   = errors.New("identifier matches multiple nodes")
	ErrInvalidIdentifier = errors.New("invalid node identifier")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidPath   = errors.New("invalid base path")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsStorage returns true if err is a storage-layer error.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrWriteConflict)
}

// IsLookup returns true if err is a query-side lookup error.
func IsLookup(err error) bool {
	return errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrMetricNotFound) ||
		errors.Is(err, ErrAmbiguousLookup) ||
		errors.Is(err, ErrInvalidIdentifier)
}

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidPath)
}

// Wrap wraps an error with additional context.
// Returns nil if err is nil.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}
