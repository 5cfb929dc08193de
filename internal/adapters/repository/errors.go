// Package repository loads model inputs and persists run artifacts.
package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	// ErrBadRecord marks an input row that cannot be parsed. Loading is
	// strict: one bad row fails the whole load.
	ErrBadRecord = errors.New("bad input record")

	// ErrMissingHeader marks a CSV file without the expected header row.
	ErrMissingHeader = errors.New("missing header row")

	// ErrEmptyPath marks a loader or sink constructed without a location.
	ErrEmptyPath = errors.New("empty path")

	// ErrNotOpen marks use of a store that was never opened or already closed.
	ErrNotOpen = errors.New("store not open")
)
